package api

import (
	"context"

	"cadence-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchPeriods(ctx context.Context, userID string) ([]domain.Period, error)
	FetchPeriod(ctx context.Context, userID, periodID string) (domain.Period, error)
	FetchTasks(ctx context.Context, userID, periodID string) ([]domain.Task, error)
	FetchBacklogTasks(ctx context.Context, userID string) ([]domain.Task, error)
	FetchProjects(ctx context.Context, userID string) ([]domain.Project, error)
	FetchReport(ctx context.Context, userID, reportID string) (domain.Report, error)
	FetchReports(ctx context.Context, userID, periodID string) ([]domain.Report, error)
	InsertReport(ctx context.Context, userID string, report domain.Report) error
	EnqueueCommands(ctx context.Context, userID string, cmds []domain.Command) error
}

// NotFoundError is returned by storage when a requested entity does not
// exist for the user.
type NotFoundError interface {
	error
	NotFound()
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// AddMany records a batch of keys and reports which were newly added.
	AddMany(ctx context.Context, userID string, keys []string) ([]bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
