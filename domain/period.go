package domain

// Period is a named, bounded date range used to group tasks. Both bounds are
// inclusive date-only values in YYYY-MM-DD form.
type Period struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	StartDate           string `json:"startDate"`
	EndDate             string `json:"endDate"`
	TasksCount          int    `json:"tasksCount"`
	CompletedTasksCount int    `json:"completedTasksCount"`
}
