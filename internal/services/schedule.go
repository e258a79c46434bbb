package services

import (
	"fmt"
	"time"

	"budgetsync/internal/core"
)

const dateLayout = "2006-01-02"

// Schedule advances a recurring expense from one due date to the next.
// anchorDay is the day of month the series started on, so that a series
// clamped to the 28th in February returns to the 31st in March.
type Schedule interface {
	Next(due time.Time, anchorDay int) time.Time
}

type DailySchedule struct{}

func (DailySchedule) Next(due time.Time, _ int) time.Time { return due.AddDate(0, 0, 1) }

type WeeklySchedule struct{}

func (WeeklySchedule) Next(due time.Time, _ int) time.Time { return due.AddDate(0, 0, 7) }

type MonthlySchedule struct{}

func (MonthlySchedule) Next(due time.Time, anchorDay int) time.Time {
	return clampedDate(due.Year(), due.Month()+1, anchorDay)
}

type YearlySchedule struct{}

func (YearlySchedule) Next(due time.Time, anchorDay int) time.Time {
	return clampedDate(due.Year()+1, due.Month(), anchorDay)
}

// clampedDate builds year-month-day, moving day back to the last day of the
// month when the month is shorter.
func clampedDate(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(day, last), 0, 0, 0, 0, time.UTC)
}

var schedules = map[core.Frequency]Schedule{
	core.Daily:   DailySchedule{},
	core.Weekly:  WeeklySchedule{},
	core.Monthly: MonthlySchedule{},
	core.Yearly:  YearlySchedule{},
}

func GetSchedule(frequency core.Frequency) (Schedule, error) {
	s, ok := schedules[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return s, nil
}

// IsDue reports whether a due date (YYYY-MM-DD) falls on or before today.
// Malformed dates are never due.
func IsDue(nextDueDate string, today time.Time) bool {
	due, err := time.Parse(dateLayout, nextDueDate)
	if err != nil {
		return false
	}
	return !due.After(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
