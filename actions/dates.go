package actions

import (
	"fmt"
	"strings"
	"time"

	"github.com/JamesWemyss/psyclone/memory"
)

var instantLayouts = []string{time.RFC3339Nano, memory.TimeLayout}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// ParseDate reads a calendar date. Besides YYYY-MM-DD and full timestamps it
// accepts YYYY-MM and YYYY, resolving to the last day of that month or year,
// so "by 2026" lands on 2026-12-31.
func ParseDate(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(memory.DateLayout, s); err == nil {
		return &t, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t.In(loc)), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return dateOf(t), nil
		}
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		d := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		return &d, nil
	}
	if t, err := time.Parse("2006", s); err == nil {
		d := time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		return &d, nil
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}

// ParseInstant reads a point in time. Dates and zone-less timestamps are
// interpreted in loc; a bare date means the start of that day, or its last
// millisecond when endOfDay is set.
func ParseInstant(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	if t, err := time.ParseInLocation(memory.DateLayout, s, loc); err == nil {
		if endOfDay {
			t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("unrecognised date or time %q", s)
}

func dateOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
