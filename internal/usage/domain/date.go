package domain

import (
	"strings"
	"time"
)

// DateLayout is the canonical calendar date form, YYYY-MM-DD.
const DateLayout = "2006-01-02"

const (
	WeeklyWindowDays  = 7
	MonthlyWindowDays = 30
	MaxQueryDays      = MonthlyWindowDays
	DefaultQueryDays  = 1
)

// ParseDate parses a canonical date. Empty or malformed input is ErrInvalidUsageDate.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidUsageDate
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidUsageDate
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// WindowStart is the first day of the windowDays-long window ending on date.
func WindowStart(date time.Time, windowDays int) time.Time {
	if windowDays < 1 {
		windowDays = 1
	}
	return date.AddDate(0, 0, -(windowDays - 1))
}

// ClampDays applies the query window policy: absent or non-positive is one
// day, anything past MaxQueryDays is MaxQueryDays.
func ClampDays(days *int) int {
	switch {
	case days == nil, *days <= 0:
		return DefaultQueryDays
	case *days > MaxQueryDays:
		return MaxQueryDays
	default:
		return *days
	}
}
