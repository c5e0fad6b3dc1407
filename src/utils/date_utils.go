package utils

import (
	"time"
)

const DateOnlyFormat = "2006-01-02"

// ParseTimestamp accepts RFC3339 timestamps and falls back to bare dates,
// which import files commonly carry.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(DateOnlyFormat, s)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateOnlyFormat)
}

// DaysBetween counts whole days from a to b; partial days truncate. The
// sign follows b relative to a.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
