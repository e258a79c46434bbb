package core

import (
	"regexp"
	"time"
)

const (
	// MonthLayout is the Go layout for budget month keys ("YYYY-MM").
	MonthLayout = "2006-01"
	// DateLayout is the Go layout for calendar dates ("YYYY-MM-DD").
	DateLayout = "2006-01-02"
	// TimestampLayout is used for every createdAt/updatedAt value produced here.
	TimestampLayout = time.RFC3339
)

var (
	monthPrefix = regexp.MustCompile(`^\d{4}-\d{2}`)
	monthKey    = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// MonthKey formats t as a budget month key in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// FormatTimestamp formats t the way every generated timestamp is stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// IsMonthKey reports whether s is exactly a "YYYY-MM" key.
func IsMonthKey(s string) bool {
	return monthKey.MatchString(s)
}

// HasMonthPrefix reports whether s starts with "YYYY-MM".
func HasMonthPrefix(s string) bool {
	return monthPrefix.MatchString(s)
}

// IsDate reports whether s is a valid "YYYY-MM-DD" date.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
