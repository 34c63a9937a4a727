package utils

import (
	"fmt"
	"regexp"
	"time"
)

const DateLayout = "2006-01-02"

var departureTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// CalendarDate returns midnight UTC of t's calendar day as seen in loc.
// Ride dates are stored this way so comparisons never depend on the
// server's zone.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeDate strips the time of day from a stored date value.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// ValidDepartureTime reports whether s is a 24h HH:MM time.
func ValidDepartureTime(s string) bool {
	return departureTimePattern.MatchString(s)
}
