package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"cadence-api/domain"
)

// Tables groups the table names the read model lives in.
type Tables struct {
	Periods  string
	Tasks    string
	Projects string
	Reports  string
}

// Storage provides access to the underlying persistence mechanisms. Reads
// come from table storage, writes travel as commands through the storage
// queue; report snapshots are the one exception and are written directly.
type Storage struct {
	periodsTable  *aztables.Client
	tasksTable    *aztables.Client
	projectsTable *aztables.Client
	reportsTable  *aztables.Client
	commandQueue  *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, commandQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, commandQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		periodsTable:  svc.NewClient(tables.Periods),
		tasksTable:    svc.NewClient(tables.Tasks),
		projectsTable: svc.NewClient(tables.Projects),
		reportsTable:  svc.NewClient(tables.Reports),
		commandQueue:  cq,
	}, nil
}

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.kind, e.id) }
func (e notFoundError) NotFound()     {}

func wrapGetError(err error, kind, id string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return notFoundError{kind: kind, id: id}
	}
	return err
}

// FetchPeriods retrieves all periods for the provided user.
func (s *Storage) FetchPeriods(ctx context.Context, userID string) ([]domain.Period, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.periodsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	periods := []domain.Period{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			p, err := decodePeriodEntity(e)
			if err != nil {
				return nil, err
			}
			periods = append(periods, p)
		}
	}
	return periods, nil
}

// FetchPeriod retrieves a single period by ID.
func (s *Storage) FetchPeriod(ctx context.Context, userID, periodID string) (domain.Period, error) {
	ent, err := s.periodsTable.GetEntity(ctx, userID, periodID, nil)
	if err != nil {
		return domain.Period{}, wrapGetError(err, "period", periodID)
	}
	return decodePeriodEntity(ent.Value)
}

// FetchTasks retrieves all tasks scheduled into the given period.
func (s *Storage) FetchTasks(ctx context.Context, userID, periodID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + userID + "' and PeriodId eq '" + periodID + "'"
	return s.listTasks(ctx, filter)
}

// FetchBacklogTasks retrieves the user's tech-dev backlog: tasks not yet
// scheduled into any period.
func (s *Storage) FetchBacklogTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + userID + "' and PeriodId eq ''"
	return s.listTasks(ctx, filter)
}

func (s *Storage) listTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.tasksTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// FetchProjects retrieves all projects for the provided user.
func (s *Storage) FetchProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.projectsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			p, err := decodeProjectEntity(e)
			if err != nil {
				return nil, err
			}
			projects = append(projects, p)
		}
	}
	return projects, nil
}

// InsertReport persists a report snapshot. Snapshots are immutable, so the
// write goes straight to the table instead of through the command queue.
func (s *Storage) InsertReport(ctx context.Context, userID string, report domain.Report) error {
	data, err := encodeReportEntity(userID, report)
	if err != nil {
		return err
	}
	_, err = s.reportsTable.AddEntity(ctx, data, nil)
	return err
}

// FetchReport retrieves a single report snapshot by ID.
func (s *Storage) FetchReport(ctx context.Context, userID, reportID string) (domain.Report, error) {
	ent, err := s.reportsTable.GetEntity(ctx, userID, reportID, nil)
	if err != nil {
		return domain.Report{}, wrapGetError(err, "report", reportID)
	}
	return decodeReportEntity(ent.Value)
}

// FetchReports retrieves all report snapshots generated for a period.
func (s *Storage) FetchReports(ctx context.Context, userID, periodID string) ([]domain.Report, error) {
	filter := "PartitionKey eq '" + userID + "' and PeriodId eq '" + periodID + "'"
	pager := s.reportsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	reports := []domain.Report{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			r, err := decodeReportEntity(e)
			if err != nil {
				return nil, err
			}
			reports = append(reports, r)
		}
	}
	return reports, nil
}

// EnqueueCommands sends the given commands to the command queue.
func (s *Storage) EnqueueCommands(ctx context.Context, userID string, cmds []domain.Command) error {
	for _, cmd := range cmds {
		env := domain.CommandEnvelope{UserID: userID, Command: cmd}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.commandQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
