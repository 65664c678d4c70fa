package planner

import (
	"sort"

	"cadence-api/domain"
)

// NoProjectLabel is the sentinel group name for tasks without a resolvable
// project.
const NoProjectLabel = "No Project"

// DateGroup is one day's worth of tasks in the list view.
type DateGroup struct {
	Date          string        `json:"date"`
	DayName       string        `json:"dayName"`
	FormattedDate string        `json:"formattedDate"`
	Tasks         []domain.Task `json:"tasks"`
}

// ProjectGroup is one project's worth of tasks in the report view.
type ProjectGroup struct {
	Project string        `json:"project"`
	Color   string        `json:"color,omitempty"`
	Tasks   []domain.Task `json:"tasks"`
}

// GroupByDate partitions tasks into one group per distinct task date,
// ordered by date ascending. Tasks keep their input order inside each
// group; no task is lost or duplicated.
func GroupByDate(tasks []domain.Task) ([]DateGroup, error) {
	byDate, err := indexTasksByDate(tasks)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	// YYYY-MM-DD sorts chronologically as text.
	sort.Strings(dates)

	groups := make([]DateGroup, 0, len(dates))
	for _, date := range dates {
		groups = append(groups, DateGroup{
			Date:          date,
			DayName:       DayName(date),
			FormattedDate: FormatDisplayDate(date),
			Tasks:         byDate[date],
		})
	}
	return groups, nil
}

// GroupByProject partitions tasks by project display name in first-seen
// order, preserving input order inside each group. Tasks without a project,
// or whose project is not in the lookup, fall under NoProjectLabel.
func GroupByProject(tasks []domain.Task, projects map[string]domain.Project) []ProjectGroup {
	groups := []ProjectGroup{}
	index := map[string]int{}

	for _, t := range tasks {
		name := NoProjectLabel
		color := ""
		if t.ProjectID != "" {
			if p, ok := projects[t.ProjectID]; ok {
				name = p.Name
				color = p.Color
			}
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, ProjectGroup{Project: name, Color: color})
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	return groups
}
