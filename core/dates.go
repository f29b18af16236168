package core

import (
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// UTC normalizes t to the canonical time representation used for every comparison.
// Naive values read from a store are taken as UTC already.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, NewFieldError(field, "must be a date formatted as YYYY-MM-DD")
	}
	return t, nil
}

// ParseMonth parses a YYYY-MM period as the first day of that month, UTC.
func ParseMonth(field, s string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, NewFieldError(field, "must be a month formatted as YYYY-MM")
	}
	return t, nil
}

// EndOfDay returns the last second of t's calendar day, UTC.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

// StartOfDay returns midnight of t's calendar day, UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
