// Package utils provides utility functions for the PV yield application.
package utils //nolint:revive // utils is a common and acceptable package name

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// DateLayout is the calendar date format used in feedback logs and the API.
const DateLayout = "2006-01-02"

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return now.With(t).BeginningOfDay()
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// ParseDate parses a YYYY-MM-DD date in loc. An empty string yields today.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if s == "" {
		return StartOfDay(time.Now().In(loc)), nil
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}
