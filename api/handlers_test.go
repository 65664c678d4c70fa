package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"cadence-api/debounce"
	"cadence-api/domain"
	"cadence-api/planner"
)

type mockAuth struct {
	userID string
	err    error
}

func (a mockAuth) UserIDFromAuthHeader(string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.userID == "" {
		return "user-1", nil
	}
	return a.userID, nil
}

type mockStore struct {
	fetchPeriodsFn      func(ctx context.Context, userID string) ([]domain.Period, error)
	fetchPeriodFn       func(ctx context.Context, userID, periodID string) (domain.Period, error)
	fetchTasksFn        func(ctx context.Context, userID, periodID string) ([]domain.Task, error)
	fetchBacklogTasksFn func(ctx context.Context, userID string) ([]domain.Task, error)
	fetchProjectsFn     func(ctx context.Context, userID string) ([]domain.Project, error)
	fetchReportFn       func(ctx context.Context, userID, reportID string) (domain.Report, error)
	fetchReportsFn      func(ctx context.Context, userID, periodID string) ([]domain.Report, error)
	insertReportFn      func(ctx context.Context, userID string, report domain.Report) error
	enqueueCommandsFn   func(ctx context.Context, userID string, cmds []domain.Command) error
}

func (m *mockStore) FetchPeriods(ctx context.Context, userID string) ([]domain.Period, error) {
	if m.fetchPeriodsFn != nil {
		return m.fetchPeriodsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) FetchPeriod(ctx context.Context, userID, periodID string) (domain.Period, error) {
	if m.fetchPeriodFn != nil {
		return m.fetchPeriodFn(ctx, userID, periodID)
	}
	return domain.Period{}, nil
}

func (m *mockStore) FetchTasks(ctx context.Context, userID, periodID string) ([]domain.Task, error) {
	if m.fetchTasksFn != nil {
		return m.fetchTasksFn(ctx, userID, periodID)
	}
	return nil, nil
}

func (m *mockStore) FetchBacklogTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if m.fetchBacklogTasksFn != nil {
		return m.fetchBacklogTasksFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) FetchProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	if m.fetchProjectsFn != nil {
		return m.fetchProjectsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) FetchReport(ctx context.Context, userID, reportID string) (domain.Report, error) {
	if m.fetchReportFn != nil {
		return m.fetchReportFn(ctx, userID, reportID)
	}
	return domain.Report{}, nil
}

func (m *mockStore) FetchReports(ctx context.Context, userID, periodID string) ([]domain.Report, error) {
	if m.fetchReportsFn != nil {
		return m.fetchReportsFn(ctx, userID, periodID)
	}
	return nil, nil
}

func (m *mockStore) InsertReport(ctx context.Context, userID string, report domain.Report) error {
	if m.insertReportFn != nil {
		return m.insertReportFn(ctx, userID, report)
	}
	return nil
}

func (m *mockStore) EnqueueCommands(ctx context.Context, userID string, cmds []domain.Command) error {
	if m.enqueueCommandsFn != nil {
		return m.enqueueCommandsFn(ctx, userID, cmds)
	}
	return nil
}

type missingError struct{ kind string }

func (e missingError) Error() string { return e.kind + " not found" }
func (e missingError) NotFound()     {}

type fakeDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	removed []string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := userID + ":" + key
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

func (d *fakeDeduper) AddMany(ctx context.Context, userID string, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		added, _ := d.Add(ctx, userID, k)
		out[i] = added
	}
	return out, nil
}

func (d *fakeDeduper) Remove(_ context.Context, userID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, userID+":"+key)
	d.removed = append(d.removed, key)
	return nil
}

func (d *fakeDeduper) removedKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.removed))
	copy(out, d.removed)
	return out
}

func doRequest(h echo.HandlerFunc, method, target, body string, params ...string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	return rec, h(c)
}

func TestGetPeriodsReturnsStoredPeriods(t *testing.T) {
	store := &mockStore{
		fetchPeriodsFn: func(_ context.Context, userID string) ([]domain.Period, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user %q", userID)
			}
			return []domain.Period{
				{ID: "p1", Name: "January 2024", StartDate: "2024-01-01", EndDate: "2024-01-31"},
			}, nil
		},
	}

	rec, err := doRequest(getPeriods(store, mockAuth{}), http.MethodGet, "/api/periods", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var periods []domain.Period
	if err := sonic.Unmarshal(rec.Body.Bytes(), &periods); err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 || periods[0].ID != "p1" {
		t.Fatalf("unexpected periods: %+v", periods)
	}
}

func TestGetPeriodsUnauthorized(t *testing.T) {
	rec, err := doRequest(getPeriods(&mockStore{}, mockAuth{err: errors.New("bad token")}), http.MethodGet, "/api/periods", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetPeriodShowBuildsViewModel(t *testing.T) {
	store := &mockStore{
		fetchPeriodFn: func(_ context.Context, _, periodID string) (domain.Period, error) {
			if periodID != "p1" {
				t.Fatalf("unexpected period %q", periodID)
			}
			return domain.Period{ID: "p1", Name: "January 2024", StartDate: "2024-01-01", EndDate: "2024-01-31"}, nil
		},
		fetchTasksFn: func(_ context.Context, _, _ string) ([]domain.Task, error) {
			return []domain.Task{
				{ID: "t1", Title: "Ship importer", TaskDate: "2024-01-05", Status: domain.StatusDone},
				{ID: "t2", Title: "Write docs", TaskDate: "2024-01-05", Status: domain.StatusTodo},
			}, nil
		},
	}

	rec, err := doRequest(getPeriodShow(store, mockAuth{}, log.New()), http.MethodGet, "/api/periods/p1", "", "id", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var vm planner.ShowViewModel
	if err := sonic.Unmarshal(rec.Body.Bytes(), &vm); err != nil {
		t.Fatal(err)
	}
	if vm.Period.ID != "p1" {
		t.Fatalf("period = %+v", vm.Period)
	}
	if vm.Calendar.Month != "2024-01" {
		t.Fatalf("calendar month = %q", vm.Calendar.Month)
	}
	if len(vm.TasksByDate) != 1 || vm.TasksByDate[0].Date != "2024-01-05" {
		t.Fatalf("tasksByDate = %+v", vm.TasksByDate)
	}
	if len(vm.TasksByDate[0].Tasks) != 2 {
		t.Fatalf("expected both tasks on 2024-01-05, got %+v", vm.TasksByDate[0].Tasks)
	}
}

func TestGetPeriodShowNotFound(t *testing.T) {
	store := &mockStore{
		fetchPeriodFn: func(_ context.Context, _, _ string) (domain.Period, error) {
			return domain.Period{}, missingError{kind: "period"}
		},
	}

	rec, err := doRequest(getPeriodShow(store, mockAuth{}, log.New()), http.MethodGet, "/api/periods/nope", "", "id", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetPeriodShowInvalidStoredDataIsServerError(t *testing.T) {
	// A persisted task with a malformed date is server state the client
	// cannot correct, so the show route reports it as a 500, not a 400.
	store := &mockStore{
		fetchPeriodFn: func(_ context.Context, _, _ string) (domain.Period, error) {
			return domain.Period{ID: "p1", Name: "January 2024", StartDate: "2024-01-01", EndDate: "2024-01-31"}, nil
		},
		fetchTasksFn: func(_ context.Context, _, _ string) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", Title: "Ship importer", TaskDate: "not-a-date"}}, nil
		},
	}

	rec, err := doRequest(getPeriodShow(store, mockAuth{}, log.New()), http.MethodGet, "/api/periods/p1", "", "id", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGetBacklogTasksFilters(t *testing.T) {
	backlog := []domain.Task{
		{ID: "t1", Title: "Fix login redirect", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
		{ID: "t2", Title: "Refactor billing", Description: "extract invoice module", Status: domain.StatusInProgress, Priority: domain.PriorityHigh},
		{ID: "t3", Title: "Update dependencies", Status: domain.StatusTodo, Priority: domain.PriorityLow},
	}
	store := &mockStore{
		fetchBacklogTasksFn: func(_ context.Context, _ string) ([]domain.Task, error) {
			return backlog, nil
		},
	}
	h := getBacklogTasks(store, mockAuth{})

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"no filters", "", []string{"t1", "t2", "t3"}},
		{"status", "?status=todo", []string{"t1", "t3"}},
		{"priority", "?priority=high", []string{"t1", "t2"}},
		{"search title", "?search=LOGIN", []string{"t1"}},
		{"search description", "?search=invoice", []string{"t2"}},
		{"combined", "?status=todo&priority=high", []string{"t1"}},
		{"no match", "?search=nonexistent", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := doRequest(h, http.MethodGet, "/api/tasks"+tc.query, "")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var tasks []domain.Task
			if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
				t.Fatal(err)
			}
			ids := make([]string, len(tasks))
			for i, task := range tasks {
				ids[i] = task.ID
			}
			if fmt.Sprint(ids) != fmt.Sprint(tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
		})
	}
}

func TestPostPeriodReportPersistsSnapshot(t *testing.T) {
	var inserted *domain.Report
	store := &mockStore{
		fetchPeriodFn: func(_ context.Context, _, _ string) (domain.Period, error) {
			return domain.Period{ID: "p1", Name: "January 2024", StartDate: "2024-01-01", EndDate: "2024-01-31"}, nil
		},
		fetchTasksFn: func(_ context.Context, _, _ string) ([]domain.Task, error) {
			return []domain.Task{
				{ID: "t1", Title: "Ship importer", TaskDate: "2024-01-05", Status: domain.StatusDone, ProjectID: "proj-1"},
			}, nil
		},
		fetchProjectsFn: func(_ context.Context, _ string) ([]domain.Project, error) {
			return []domain.Project{{ID: "proj-1", Name: "Apollo"}}, nil
		},
		insertReportFn: func(_ context.Context, userID string, report domain.Report) error {
			if userID != "user-1" {
				t.Fatalf("unexpected user %q", userID)
			}
			inserted = &report
			return nil
		},
	}

	rec, err := doRequest(postPeriodReport(store, mockAuth{}), http.MethodPost, "/api/periods/p1/reports", `{"name":"Sprint review"}`, "id", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
	}
	if inserted == nil {
		t.Fatal("report was not persisted")
	}
	if inserted.Name != "Sprint review" {
		t.Fatalf("report name = %q", inserted.Name)
	}
	if len(inserted.Groups) != 1 || inserted.Groups[0].Project != "Apollo" {
		t.Fatalf("groups = %+v", inserted.Groups)
	}

	var body domain.Report
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ID != inserted.ID {
		t.Fatalf("response report id %q != persisted id %q", body.ID, inserted.ID)
	}
}

func TestPostPeriodReportEmptyBodyDefaultsName(t *testing.T) {
	var inserted *domain.Report
	store := &mockStore{
		fetchPeriodFn: func(_ context.Context, _, _ string) (domain.Period, error) {
			return domain.Period{ID: "p1", Name: "January 2024", StartDate: "2024-01-01", EndDate: "2024-01-31"}, nil
		},
		insertReportFn: func(_ context.Context, _ string, report domain.Report) error {
			inserted = &report
			return nil
		},
	}

	rec, err := doRequest(postPeriodReport(store, mockAuth{}), http.MethodPost, "/api/periods/p1/reports", "", "id", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if inserted == nil || inserted.Name != "Report January 2024" {
		t.Fatalf("inserted = %+v", inserted)
	}
}

func TestGetReportNotFound(t *testing.T) {
	store := &mockStore{
		fetchReportFn: func(_ context.Context, _, _ string) (domain.Report, error) {
			return domain.Report{}, missingError{kind: "report"}
		},
	}
	rec, err := doRequest(getReport(store, mockAuth{}), http.MethodGet, "/api/reports/r1", "", "id", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetPeriodReportsListsSnapshots(t *testing.T) {
	store := &mockStore{
		fetchReportsFn: func(_ context.Context, _, periodID string) ([]domain.Report, error) {
			if periodID != "p1" {
				t.Fatalf("unexpected period %q", periodID)
			}
			return []domain.Report{{ID: "r1"}, {ID: "r2"}}, nil
		},
	}
	rec, err := doRequest(getPeriodReports(store, mockAuth{}), http.MethodGet, "/api/periods/p1/reports", "", "id", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var reports []domain.Report
	if err := sonic.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestPostCommandsAcceptsAndEnqueues(t *testing.T) {
	enqueued := make(chan []domain.Command, 1)
	store := &mockStore{
		enqueueCommandsFn: func(_ context.Context, userID string, cmds []domain.Command) error {
			if userID != "user-1" {
				t.Errorf("unexpected user %q", userID)
			}
			enqueued <- cmds
			return nil
		},
	}
	deduper := newFakeDeduper()
	initCommandSender(store, deduper, log.New())
	defer shutdownCommandSender()

	body := `[{"entityType":"task","type":"create-task","data":{"title":"New task"}}]`
	rec, err := doRequest(postCommands(store, mockAuth{}, deduper), http.MethodPost, "/api/commands", body)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}

	var resp postCommandResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.IdempotencyKeys) != 1 || resp.IdempotencyKeys[0] == "" {
		t.Fatalf("idempotency keys = %v", resp.IdempotencyKeys)
	}

	select {
	case cmds := <-enqueued:
		if len(cmds) != 1 || cmds[0].Type != "create-task" {
			t.Fatalf("enqueued = %+v", cmds)
		}
		if cmds[0].ID == "" || cmds[0].IdempotencyKey == "" {
			t.Fatalf("command was not finalized: %+v", cmds[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command was never enqueued")
	}
}

func TestPostCommandsDuplicateBatchSkipsEnqueue(t *testing.T) {
	store := &mockStore{
		enqueueCommandsFn: func(_ context.Context, _ string, _ []domain.Command) error {
			t.Error("duplicate batch must not reach the queue")
			return nil
		},
	}
	deduper := newFakeDeduper()
	initCommandSender(store, deduper, log.New())
	defer shutdownCommandSender()

	body := `[{"entityType":"task","type":"update-task","idempotencyKey":"replay-1","data":{"id":"t1"}}]`
	if _, err := deduper.Add(context.Background(), "user-1", "replay-1"); err != nil {
		t.Fatal(err)
	}

	rec, err := doRequest(postCommands(store, mockAuth{}, deduper), http.MethodPost, "/api/commands", body)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp postCommandResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.IdempotencyKeys) != 1 || resp.IdempotencyKeys[0] != "replay-1" {
		t.Fatalf("idempotency keys = %v", resp.IdempotencyKeys)
	}
}

func TestPostCommandsRejectsInvalidBody(t *testing.T) {
	rec, err := doRequest(postCommands(&mockStore{}, mockAuth{}, nil), http.MethodPost, "/api/commands", `{"not":"an array"}`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostMoveTaskValidatesDate(t *testing.T) {
	rec, err := doRequest(postMoveTask(&mockStore{}, mockAuth{}, debounce.New(0)), http.MethodPost, "/api/tasks/t1/move", `{"taskDate":"01/05/2024"}`, "id", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostMoveTaskEnqueuesMoveCommand(t *testing.T) {
	enqueued := make(chan []domain.Command, 1)
	store := &mockStore{
		enqueueCommandsFn: func(_ context.Context, _ string, cmds []domain.Command) error {
			enqueued <- cmds
			return nil
		},
	}
	initCommandSender(store, nil, log.New())
	defer shutdownCommandSender()

	// Zero window makes the debouncer synchronous.
	rec, err := doRequest(postMoveTask(store, mockAuth{}, debounce.New(0)), http.MethodPost, "/api/tasks/t1/move", `{"taskDate":"2024-01-10"}`, "id", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}

	select {
	case cmds := <-enqueued:
		if len(cmds) != 1 || cmds[0].Type != "move-task" {
			t.Fatalf("enqueued = %+v", cmds)
		}
		var payload map[string]string
		if err := sonic.Unmarshal(cmds[0].Data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload["id"] != "t1" || payload["taskDate"] != "2024-01-10" {
			t.Fatalf("payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("move command was never enqueued")
	}
}

func TestPostMoveTaskCoalescesBursts(t *testing.T) {
	enqueued := make(chan []domain.Command, 8)
	store := &mockStore{
		enqueueCommandsFn: func(_ context.Context, _ string, cmds []domain.Command) error {
			enqueued <- cmds
			return nil
		},
	}
	initCommandSender(store, nil, log.New())
	defer shutdownCommandSender()

	h := postMoveTask(store, mockAuth{}, debounce.New(50*time.Millisecond))
	for _, date := range []string{"2024-01-03", "2024-01-07", "2024-01-12"} {
		rec, err := doRequest(h, http.MethodPost, "/api/tasks/t1/move", `{"taskDate":"`+date+`"}`, "id", "t1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
	}

	select {
	case cmds := <-enqueued:
		var payload map[string]string
		if err := sonic.Unmarshal(cmds[0].Data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload["taskDate"] != "2024-01-12" {
			t.Fatalf("expected only the last move to survive, got %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("move command was never enqueued")
	}

	select {
	case cmds := <-enqueued:
		t.Fatalf("extra enqueue after coalescing: %+v", cmds)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHealthz(t *testing.T) {
	rec, err := doRequest(healthz(&mockStore{}), http.MethodGet, "/healthz", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
