package services

import (
	"testing"
	"time"

	"budgetsync/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSchedule_Next(t *testing.T) {
	tests := []struct {
		name      string
		frequency core.Frequency
		due       time.Time
		anchor    int
		want      time.Time
	}{
		{"daily", core.Daily, date(2024, 1, 31), 31, date(2024, 2, 1)},
		{"weekly across month", core.Weekly, date(2024, 1, 29), 29, date(2024, 2, 5)},
		{"monthly plain", core.Monthly, date(2024, 1, 15), 15, date(2024, 2, 15)},
		{"monthly clamps to short month", core.Monthly, date(2024, 1, 31), 31, date(2024, 2, 29)},
		{"monthly returns to anchor", core.Monthly, date(2024, 2, 29), 31, date(2024, 3, 31)},
		{"monthly across year", core.Monthly, date(2024, 12, 10), 10, date(2025, 1, 10)},
		{"yearly leap day", core.Yearly, date(2024, 2, 29), 29, date(2025, 2, 28)},
		{"yearly plain", core.Yearly, date(2024, 6, 1), 1, date(2025, 6, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := GetSchedule(tt.frequency)
			if err != nil {
				t.Fatalf("GetSchedule(%s) error = %v", tt.frequency, err)
			}
			if got := s.Next(tt.due, tt.anchor); !got.Equal(tt.want) {
				t.Errorf("Next(%s) = %s, want %s", tt.due.Format(dateLayout), got.Format(dateLayout), tt.want.Format(dateLayout))
			}
		})
	}
}

func TestGetSchedule_Unknown(t *testing.T) {
	if _, err := GetSchedule("fortnightly"); err == nil {
		t.Error("expected error for unknown frequency")
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	tests := []struct {
		due  string
		want bool
	}{
		{"2024-03-09", true},
		{"2024-03-10", true},
		{"2024-03-11", false},
		{"", false},
		{"10/03/2024", false},
	}
	for _, tt := range tests {
		if got := IsDue(tt.due, now); got != tt.want {
			t.Errorf("IsDue(%q) = %v, want %v", tt.due, got, tt.want)
		}
	}
}
