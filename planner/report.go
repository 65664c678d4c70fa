package planner

import (
	"time"

	"github.com/google/uuid"

	"cadence-api/domain"
)

// Summary holds the global totals for a set of tasks.
type Summary struct {
	TotalTasks       int `json:"totalTasks"`
	CompletedTasks   int `json:"completedTasks"`
	TotalStoryPoints int `json:"totalStoryPoints"`
}

// Summarize computes totals over a task list. Unset story points count as
// zero; completed means status done.
func Summarize(tasks []domain.Task) Summary {
	s := Summary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Done() {
			s.CompletedTasks++
		}
		s.TotalStoryPoints += t.Points()
	}
	return s
}

// OnTimeFlag compares a delivery date against a target date. It returns
// "Yes" when delivered on or before the target, "No" when late, and an
// empty string when either date is missing or unparseable.
func OnTimeFlag(deliveredOn, targetOn string) string {
	delivered, err := ParseLocalDate(deliveredOn)
	if err != nil {
		return ""
	}
	target, err := ParseLocalDate(targetOn)
	if err != nil {
		return ""
	}
	if delivered.After(target) {
		return "No"
	}
	return "Yes"
}

// BuildReportSnapshot produces an immutable report for a period's tasks.
// The snapshot is a deep, independent copy: later edits to the source tasks
// never alter a previously built report. An empty name defaults to
// "Report <period name>".
func BuildReportSnapshot(period domain.Period, tasks []domain.Task, projects map[string]domain.Project, name string) (domain.Report, error) {
	start, err := ParseLocalDate(period.StartDate)
	if err != nil {
		return domain.Report{}, err
	}
	end, err := ParseLocalDate(period.EndDate)
	if err != nil {
		return domain.Report{}, err
	}
	if start.After(end) {
		return domain.Report{}, InvalidRangeError{Start: period.StartDate, End: period.EndDate}
	}

	if name == "" {
		name = "Report " + period.Name
	}

	summary := Summarize(tasks)
	report := domain.Report{
		ID:               uuid.NewString(),
		PeriodID:         period.ID,
		Name:             name,
		CreatedAt:        time.Now().UTC(),
		TotalTasks:       summary.TotalTasks,
		CompletedTasks:   summary.CompletedTasks,
		TotalStoryPoints: summary.TotalStoryPoints,
	}

	for _, g := range GroupByProject(tasks, projects) {
		group := domain.ReportGroup{Project: g.Project, Color: g.Color}
		for _, t := range g.Tasks {
			group.Tasks = append(group.Tasks, summarizeTask(t, period))
			group.TotalStoryPoints += t.Points()
		}
		report.Groups = append(report.Groups, group)
	}
	return report, nil
}

// summarizeTask copies the scalar fields a report keeps for one task. Only
// delivered tasks get an on-time flag, judged against the period's end
// date.
func summarizeTask(t domain.Task, period domain.Period) domain.TaskSummary {
	s := domain.TaskSummary{
		Title:       t.Title,
		Status:      t.Status,
		Priority:    t.Priority,
		StoryPoints: t.Points(),
		TaskDate:    t.TaskDate,
	}
	if t.Done() {
		s.OnTime = OnTimeFlag(t.TaskDate, period.EndDate)
	}
	return s
}
