package planner

import "cadence-api/domain"

// ShowViewModel is everything the period detail page renders.
type ShowViewModel struct {
	Period      domain.Period `json:"period"`
	Calendar    Calendar      `json:"calendarData"`
	TasksByDate []DateGroup   `json:"tasksByDate"`
}

// BuildShowViewModel assembles the calendar grid and the date-grouped task
// list for a period. Either a complete view model is returned or an error;
// never a partial one.
func BuildShowViewModel(period domain.Period, tasks []domain.Task) (ShowViewModel, error) {
	cal, err := BuildCalendar(period, tasks)
	if err != nil {
		return ShowViewModel{}, err
	}
	byDate, err := GroupByDate(tasks)
	if err != nil {
		return ShowViewModel{}, err
	}
	return ShowViewModel{Period: period, Calendar: cal, TasksByDate: byDate}, nil
}

// GenerateReport builds an immutable report snapshot for a period. Storage
// of the result is the caller's concern; this package performs no I/O.
func GenerateReport(period domain.Period, tasks []domain.Task, projects map[string]domain.Project, name string) (domain.Report, error) {
	return BuildReportSnapshot(period, tasks, projects, name)
}
