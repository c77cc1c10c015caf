// Package schedule resolves the loosely-typed schedule cells of a row into a
// concrete time and selects the next due row.
package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sheet serial dates count days from 1899-12-30 (serial 1 = 1899-12-31).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Accepted layouts for free-form date cells, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseSchedule resolves a date cell plus independent hour and minute cells
// into a single timestamp in loc.
//
// The date cell may be a serial day number (>= 1, fractional part ignored) or
// one of the accepted date layouts; either way the result is normalized to
// midnight before the time-of-day is applied. Blank hour/minute default to 0.
// Every failure path returns an explicit error; the caller decides whether
// that excludes the row or aborts anything.
func ParseSchedule(dateRaw, hourRaw, minuteRaw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	day, err := parseDate(strings.TrimSpace(dateRaw), loc)
	if err != nil {
		return time.Time{}, err
	}

	hour, err := parseClockPart(hourRaw, 23, "hour")
	if err != nil {
		return time.Time{}, err
	}
	minute, err := parseClockPart(minuteRaw, 59, "minute")
	if err != nil {
		return time.Time{}, err
	}

	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date cell is empty")
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 1 {
			return time.Time{}, fmt.Errorf("date serial %v out of range", serial)
		}
		days := int(math.Floor(serial))
		d := serialEpoch.AddDate(0, 0, days)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable date cell %q", raw)
}

func parseClockPart(raw string, max int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("non-numeric %s cell %q", name, raw)
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%s %d out of range", name, n)
	}
	return n, nil
}
