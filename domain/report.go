package domain

import "time"

// TaskSummary is the flattened, copied form a task takes inside a report
// snapshot. Only scalar fields are carried so later task edits can never
// leak into an existing report.
type TaskSummary struct {
	Title       string   `json:"title"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	StoryPoints int      `json:"storyPoints"`
	TaskDate    string   `json:"taskDate,omitempty"`
	// OnTime is "Yes" or "No" for delivered tasks; empty when the task has
	// no delivery date to judge.
	OnTime string `json:"onTime,omitempty"`
}

// ReportGroup holds one project's tasks within a report, in the order the
// tasks appeared in the period.
type ReportGroup struct {
	Project          string        `json:"project"`
	Color            string        `json:"color,omitempty"`
	Tasks            []TaskSummary `json:"tasks"`
	TotalStoryPoints int           `json:"totalStoryPoints"`
}

// Report is an immutable point-in-time summary of a period's tasks grouped
// by project. Once written it never changes, even if the underlying tasks
// do.
type Report struct {
	ID               string        `json:"id"`
	PeriodID         string        `json:"periodId"`
	Name             string        `json:"reportName"`
	CreatedAt        time.Time     `json:"createdAt"`
	Groups           []ReportGroup `json:"reportData"`
	TotalTasks       int           `json:"totalTasks"`
	CompletedTasks   int           `json:"completedTasks"`
	TotalStoryPoints int           `json:"totalStoryPoints"`
}
