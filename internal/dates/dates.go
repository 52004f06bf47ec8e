// Package dates provides the week arithmetic used to bucket products by
// acquisition week and the compact YYYYMMDD date format used in
// configuration files and output directory names.
package dates

import (
	"fmt"
	"time"
)

// DateLayout is the compact date form used in configuration files and
// output directory names.
const DateLayout = "20060102"

// NearestMonday returns the Monday on or before t (midnight UTC).
// If t already falls on a Monday the same date is returned.
func NearestMonday(t time.Time) time.Time {
	t = midnightUTC(t)
	// time.Weekday has Sunday == 0; shift so Monday == 0.
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// NearestSunday returns the Sunday on or after t (midnight UTC).
// If t already falls on a Sunday the same date is returned.
func NearestSunday(t time.Time) time.Time {
	t = midnightUTC(t)
	if t.Weekday() == time.Sunday {
		return t
	}
	return NearestMonday(t).AddDate(0, 0, 6)
}

// Parse converts a YYYYMMDD string to a midnight-UTC time.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYYMMDD: %w", s, err)
	}
	return t, nil
}

// Format renders t in YYYYMMDD form.
func Format(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
