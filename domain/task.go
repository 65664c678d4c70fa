package domain

import "github.com/bytedance/sonic"

// Status is the workflow state of a task. Transitions are unconstrained:
// any status may follow any other.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCodeReview Status = "code_review"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a unit of work tracked inside a period. Tasks with an empty
// PeriodID are tech-dev backlog items not yet scheduled into a period day.
// Notes carries the rich-text editor payload; it is opaque to the server.
type Task struct {
	ID              string                 `json:"id"`
	PeriodID        string                 `json:"periodId,omitempty"`
	ProjectID       string                 `json:"projectId,omitempty"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	Status          Status                 `json:"status"`
	Priority        Priority               `json:"priority"`
	StoryPoints     *int                   `json:"storyPoints,omitempty"`
	TaskDate        string                 `json:"taskDate,omitempty"`
	Notes           sonic.NoCopyRawMessage `json:"notes,omitempty"`
	LinkPullRequest string                 `json:"linkPullRequest,omitempty"`
}

// Done reports whether the task reached the done status.
func (t Task) Done() bool { return t.Status == StatusDone }

// Points returns the task's story points, treating unset as zero.
func (t Task) Points() int {
	if t.StoryPoints == nil {
		return 0
	}
	return *t.StoryPoints
}
