// Package dateparse turns the loose time expressions typed at the command
// line ("now", "-15m", "2h ago", "14:30") into absolute times.
package dateparse

import (
	"fmt"
	"strings"
	"time"
)

// ParseTime parses an event time relative to time.Now().
func ParseTime(input string) (time.Time, error) {
	return ParseTimeFrom(input, time.Now())
}

// ParseTimeFrom parses input relative to now. Results carry now's location
// unless the input names its own offset.
//
// Supported formats:
//   - Keyword: "now"
//   - Offsets into the past: "-15m", "-1h30m", "2h ago", "45m ago"
//   - Clock time: "14:30" (today, or yesterday if that is still ahead of now)
//   - Local timestamps: "2026-03-01 14:30", "2026-03-01T14:30"
//   - RFC 3339: "2026-03-01T14:30:00Z"
func ParseTimeFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}
	if input == "now" {
		return now, nil
	}

	if rest, ok := strings.CutPrefix(input, "-"); ok {
		return pastOffset(rest, now, input)
	}
	if rest, ok := strings.CutSuffix(input, " ago"); ok {
		return pastOffset(strings.ReplaceAll(rest, " ", ""), now, input)
	}

	if t, err := time.Parse(time.RFC3339, strings.ToUpper(input)); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02t15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return t, nil
		}
	}

	if clock, err := time.Parse("15:04", input); err == nil {
		y, m, d := now.Date()
		t := time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if t.After(now) {
			t = t.AddDate(0, 0, -1)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", input)
}

func pastOffset(s string, now time.Time, input string) (time.Time, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid offset in %q (use e.g. -15m or 2h ago)", input)
	}
	return now.Add(-d), nil
}

// ParseDuration accepts a Go duration ("45m") or a bare minute count ("20").
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return 0, fmt.Errorf("empty duration")
	}
	var mins int
	if _, err := fmt.Sscanf(input, "%d", &mins); err == nil && fmt.Sprint(mins) == input {
		if mins < 0 {
			return 0, fmt.Errorf("negative duration %q", input)
		}
		return time.Duration(mins) * time.Minute, nil
	}
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", input)
	}
	return d, nil
}
