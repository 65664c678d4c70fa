// Package planner builds the calendar and report view models for a period.
// Every operation is a pure function of its inputs: no I/O, no shared state,
// safe for concurrent use.
package planner

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// InvalidRangeError reports a period whose start date falls after its end
// date.
type InvalidRangeError struct {
	Start string
	End   string
}

func (e InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s", e.Start, e.End)
}

// InvalidTaskDateError reports a date value that does not parse as
// YYYY-MM-DD.
type InvalidTaskDateError struct {
	Value string
}

func (e InvalidTaskDateError) Error() string {
	return fmt.Sprintf("invalid task date %q", e.Value)
}

// ParseLocalDate parses a YYYY-MM-DD string into a local-calendar date.
// No time zone conversion is applied; the calendar fields round-trip
// through FormatLocalDate unchanged.
func ParseLocalDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, InvalidTaskDateError{Value: value}
	}
	return t, nil
}

// FormatLocalDate renders a date as YYYY-MM-DD using its own calendar
// fields.
func FormatLocalDate(t time.Time) string {
	return t.Format(dateLayout)
}

// EnumerateDates returns every date in [start, end] inclusive, strictly
// increasing by one calendar day. It fails with InvalidRangeError when
// start is after end.
func EnumerateDates(start, end string) ([]string, error) {
	from, err := ParseLocalDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseLocalDate(end)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, InvalidRangeError{Start: start, End: end}
	}

	dates := make([]string, 0, to.Sub(from)/(24*time.Hour)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, FormatLocalDate(d))
	}
	return dates, nil
}

// DayName returns the weekday name for a YYYY-MM-DD value, or an empty
// string when the value does not parse.
func DayName(value string) string {
	t, err := ParseLocalDate(value)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

// FormatDisplayDate renders a YYYY-MM-DD value for list headers, e.g.
// "January 5, 2024". Unparseable values are returned as-is.
func FormatDisplayDate(value string) string {
	t, err := ParseLocalDate(value)
	if err != nil {
		return value
	}
	return t.Format("January 2, 2006")
}

// IsToday reports whether the value names the current local calendar date.
func IsToday(value string) bool {
	return isToday(value, time.Now())
}

func isToday(value string, now time.Time) bool {
	t, err := ParseLocalDate(value)
	if err != nil {
		return false
	}
	return sameDate(t, now)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
