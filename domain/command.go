package domain

import "github.com/bytedance/sonic"

// Entity types commands may address.
const (
	EntityTask    = "task"
	EntityPeriod  = "period"
	EntityProject = "project"
)

// CommandMoveTask is the one command type the API builds itself; every
// other type arrives pre-built in client batches and passes through opaque.
const CommandMoveTask = "move-task"

// Command is a write request for the planner's domain model. The API never
// applies commands: it stamps them and enqueues them for the domain
// service, and reads continue against the table-storage read model.
type Command struct {
	// ID duplicates IdempotencyKey on the wire so queue consumers can key
	// on either field.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// NewMoveTaskCommand builds the reschedule command emitted when a task is
// dragged to a new date. The date must already be validated.
func NewMoveTaskCommand(taskID, taskDate string) (Command, error) {
	payload, err := sonic.Marshal(struct {
		ID       string `json:"id"`
		TaskDate string `json:"taskDate"`
	}{ID: taskID, TaskDate: taskDate})
	if err != nil {
		return Command{}, err
	}
	return Command{
		EntityType: EntityTask,
		Type:       CommandMoveTask,
		Data:       payload,
	}, nil
}

// CommandEnvelope pairs a command with the user issuing it; this is the
// queue message format the domain service consumes.
type CommandEnvelope struct {
	UserID  string  `json:"userId"`
	Command Command `json:"command"`
}
