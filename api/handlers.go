package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"cadence-api/debounce"
	"cadence-api/domain"
	"cadence-api/planner"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, logger *log.Logger) {
	moves := debounce.New(envDur("MOVE_DEBOUNCE_WINDOW", 250*time.Millisecond))

	e.GET("/api/periods", getPeriods(store, auth))
	e.GET("/api/periods/:id", getPeriodShow(store, auth, logger))
	e.GET("/api/periods/:id/reports", getPeriodReports(store, auth))
	e.POST("/api/periods/:id/reports", postPeriodReport(store, auth))
	e.GET("/api/tasks", getBacklogTasks(store, auth))
	e.GET("/api/projects", getProjects(store, auth))
	e.GET("/api/reports/:id", getReport(store, auth))
	e.POST("/api/commands", postCommands(store, auth, deduper))
	e.POST("/api/tasks/:id/move", postMoveTask(store, auth, moves))
	e.GET("/healthz", healthz(store))

	initCommandSender(store, deduper, logger)
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getPeriods(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		periods, err := store.FetchPeriods(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, periods)
	}
}

func getPeriodShow(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newShowRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		periodID := c.Param("id")
		fetchStart := time.Now()
		period, fetchErr := store.FetchPeriod(ctx, userID, periodID)
		if fetchErr == nil {
			var tasks []domain.Task
			tasks, fetchErr = store.FetchTasks(ctx, userID, periodID)
			metrics.SetTasksInPeriod(len(tasks))
			if fetchErr == nil {
				metrics.ObserveFetch(time.Since(fetchStart))

				buildStart := time.Now()
				vm, buildErr := planner.BuildShowViewModel(period, tasks)
				metrics.ObserveBuild(time.Since(buildStart))
				if buildErr != nil {
					metrics.SetErrorStage("build")
					c.Logger().Error(buildErr)
					err = c.String(http.StatusInternalServerError, buildErr.Error())
					return err
				}
				err = c.JSON(http.StatusOK, vm)
				if err != nil {
					metrics.SetErrorStage("encode_response")
				}
				return err
			}
		}
		metrics.ObserveFetch(time.Since(fetchStart))

		var notFound NotFoundError
		if errors.As(fetchErr, &notFound) {
			metrics.SetErrorStage("not_found")
			err = c.String(http.StatusNotFound, fetchErr.Error())
			return err
		}
		metrics.SetErrorStage("storage")
		c.Logger().Error(fetchErr)
		err = c.String(http.StatusInternalServerError, fetchErr.Error())
		return err
	}
}

func getBacklogTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.FetchBacklogTasks(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tasks = filterTasks(tasks,
			c.QueryParam("search"),
			c.QueryParam("status"),
			c.QueryParam("priority"),
		)
		return c.JSON(http.StatusOK, tasks)
	}
}

// filterTasks applies the backlog page's search and facet filters. Search
// matches title and description case-insensitively.
func filterTasks(tasks []domain.Task, search, status, priority string) []domain.Task {
	if search == "" && status == "" && priority == "" {
		return tasks
	}
	search = strings.ToLower(search)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if status != "" && string(t.Status) != status {
			continue
		}
		if priority != "" && string(t.Priority) != priority {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func getProjects(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		projects, err := store.FetchProjects(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func postPeriodReport(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req generateReportRequest
		dec := sonic.ConfigStd.NewDecoder(c.Request().Body)
		if err := dec.Decode(&req); err != nil && err != io.EOF {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		periodID := c.Param("id")
		period, err := store.FetchPeriod(ctx, userID, periodID)
		if err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tasks, err := store.FetchTasks(ctx, userID, periodID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		projects, err := store.FetchProjects(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		lookup := make(map[string]domain.Project, len(projects))
		for _, p := range projects {
			lookup[p.ID] = p
		}

		report, err := planner.GenerateReport(period, tasks, lookup, req.Name)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if err := store.InsertReport(ctx, userID, report); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to persist report")
		}
		return c.JSON(http.StatusCreated, report)
	}
}

func getPeriodReports(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		reports, err := store.FetchReports(ctx, userID, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, reports)
	}
}

func getReport(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		report, err := store.FetchReport(ctx, userID, c.Param("id"))
		if err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, report)
	}
}

func postCommands(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		keys := finalizeCommands(cmds)

		fresh := cmds
		var added []string
		if deduper != nil {
			claimed, dedupeErr := deduper.AddMany(ctx, userID, keys)
			if dedupeErr != nil {
				rollbackDedupeKeys(userID, newlyClaimed(keys, claimed))
				c.Logger().Errorf("dedupe failed: %v", dedupeErr)
				return c.String(http.StatusInternalServerError, "failed to enqueue commands")
			}
			fresh = fresh[:0]
			for i, first := range claimed {
				if first {
					fresh = append(fresh, cmds[i])
				}
			}
			added = newlyClaimed(keys, claimed)
			if len(fresh) == 0 {
				// Full replay of an already accepted batch.
				return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
			}
		}

		job := enqueueJob{
			userID: userID,
			cmds:   fresh,
			added:  added,
		}

		if tryEnqueueJob(job) {
			return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
		}

		if globalLog != nil {
			globalLog.Warn("enqueue buffer saturated; processing inline")
		}

		enqueueCtx, cancel := context.WithTimeout(bg, enqueueTimeout)
		enqueueErr := store.EnqueueCommands(enqueueCtx, userID, job.cmds)
		cancel()

		if enqueueErr != nil {
			rollbackDedupeKeys(userID, job.added)
			c.Logger().Errorf("enqueue inline failed: %v", enqueueErr)
			return c.String(http.StatusInternalServerError, "failed to enqueue commands")
		}

		return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
	}
}

func postMoveTask(store Storage, auth Authenticator, moves *debounce.Debouncer) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		taskID := c.Param("id")
		var req moveTaskRequest
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postCommandMaxSize))
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if _, err := planner.ParseLocalDate(req.TaskDate); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		cmd, err := domain.NewMoveTaskCommand(taskID, req.TaskDate)
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		cmds := []domain.Command{cmd}
		keys := finalizeCommands(cmds)

		// Drag-and-drop fires a burst of moves for the same task; only the
		// final date needs to reach the queue.
		moves.Call("move:"+userID+":"+taskID, func() {
			job := enqueueJob{userID: userID, cmds: cmds}
			if tryEnqueueJob(job) {
				return
			}
			enqueueCtx, cancel := context.WithTimeout(bg, enqueueTimeout)
			defer cancel()
			if err := store.EnqueueCommands(enqueueCtx, userID, cmds); err != nil && globalLog != nil {
				globalLog.Errorf("move enqueue failed, err: %v, task: %s, user: %s", err, taskID, userID)
			}
		})

		return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
	}
}
