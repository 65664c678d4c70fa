package planner

import (
	"time"

	"cadence-api/domain"
)

// CalendarDay is one cell of the calendar grid.
type CalendarDay struct {
	Date           string        `json:"date"`
	DayOfMonth     int           `json:"dayOfMonth"`
	InPeriod       bool          `json:"isInPeriod"`
	Today          bool          `json:"isToday"`
	Tasks          []domain.Task `json:"tasks"`
	TasksCount     int           `json:"tasksCount"`
	CompletedCount int           `json:"completedCount"`
}

// CalendarWeek is exactly seven consecutive days, Sunday through Saturday.
type CalendarWeek []CalendarDay

// Calendar is the week-partitioned grid covering the anchor month of a
// period.
type Calendar struct {
	Month string         `json:"month"`
	Weeks []CalendarWeek `json:"weeks"`
}

// BuildCalendar produces the calendar grid for a period. The anchor month
// is the calendar month containing the period's start date; multi-month
// periods render only that month, tasks dated outside it are simply not
// shown here (the date-grouped list remains the full view).
func BuildCalendar(period domain.Period, tasks []domain.Task) (Calendar, error) {
	return buildCalendarAt(period, tasks, time.Now())
}

func buildCalendarAt(period domain.Period, tasks []domain.Task, now time.Time) (Calendar, error) {
	start, err := ParseLocalDate(period.StartDate)
	if err != nil {
		return Calendar{}, err
	}
	end, err := ParseLocalDate(period.EndDate)
	if err != nil {
		return Calendar{}, err
	}
	if start.After(end) {
		return Calendar{}, InvalidRangeError{Start: period.StartDate, End: period.EndDate}
	}

	byDate, err := indexTasksByDate(tasks)
	if err != nil {
		return Calendar{}, err
	}

	firstOfMonth := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	lastOfMonth := firstOfMonth.AddDate(0, 1, -1)
	gridStart := firstOfMonth.AddDate(0, 0, -int(firstOfMonth.Weekday()))
	gridEnd := lastOfMonth.AddDate(0, 0, int(time.Saturday-lastOfMonth.Weekday()))

	cal := Calendar{Month: firstOfMonth.Format("2006-01")}
	for d := gridStart; !d.After(gridEnd); {
		week := make(CalendarWeek, 0, 7)
		for i := 0; i < 7; i++ {
			week = append(week, buildDay(d, start, end, byDate, now))
			d = d.AddDate(0, 0, 1)
		}
		cal.Weeks = append(cal.Weeks, week)
	}
	return cal, nil
}

func buildDay(d, start, end time.Time, byDate map[string][]domain.Task, now time.Time) CalendarDay {
	date := FormatLocalDate(d)
	day := CalendarDay{
		Date:       date,
		DayOfMonth: d.Day(),
		InPeriod:   !d.Before(start) && !d.After(end),
		Today:      sameDate(d, now),
		Tasks:      byDate[date],
	}
	day.TasksCount = len(day.Tasks)
	for _, t := range day.Tasks {
		if t.Done() {
			day.CompletedCount++
		}
	}
	return day
}

// indexTasksByDate buckets tasks by their date, preserving input order
// inside each bucket. Any task with a missing or unparseable date fails the
// whole build; period tasks always carry a date.
func indexTasksByDate(tasks []domain.Task) (map[string][]domain.Task, error) {
	byDate := make(map[string][]domain.Task, len(tasks))
	for _, t := range tasks {
		if _, err := ParseLocalDate(t.TaskDate); err != nil {
			return nil, err
		}
		byDate[t.TaskDate] = append(byDate[t.TaskDate], t)
	}
	return byDate, nil
}
