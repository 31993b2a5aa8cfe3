package util

import (
	"fmt"
	"strconv"
	"time"
)

var timeLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

// ParseTime accepts RFC3339, "YYYY-MM-DD hh:mm:ss", YYYY-MM-DD and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// four-digit values are years, not timestamps
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 9999 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseWindowStart converts an analysis window key into its start instant.
// Keys are a bare year ("2023"), a month ("2023-06") or a full date ("2023-06-15"), all UTC.
func ParseWindowStart(window string) (time.Time, error) {
	for _, layout := range []string{"2006", "2006-01", time.DateOnly} {
		if t, err := time.Parse(layout, window); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid analysis window %q", window)
}

// EndOfRange returns end, or today at midnight UTC when end is zero.
func EndOfRange(end time.Time) time.Time {
	if end.IsZero() {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	return end
}

// WindowRange is the [from, to] retrieval range of window ending at end.
// to may precede from when the window starts after end.
func WindowRange(window string, end time.Time) (from, to time.Time, err error) {
	from, err = ParseWindowStart(window)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, EndOfRange(end), nil
}
