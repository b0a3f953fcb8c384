package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func TestParseTime_Keyword(t *testing.T) {
	got, err := ParseTimeFrom("  NOW ", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(testNow) {
		t.Errorf("now = %v, want %v", got, testNow)
	}
}

func TestParseTime_Offsets(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"-15m", testNow.Add(-15 * time.Minute)},
		{"-1h30m", testNow.Add(-90 * time.Minute)},
		{"-0s", testNow},
		{"2h ago", testNow.Add(-2 * time.Hour)},
		{"45m ago", testNow.Add(-45 * time.Minute)},
		{"1h 15m ago", testNow.Add(-75 * time.Minute)},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_ClockTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"09:15", time.Date(2026, 2, 18, 9, 15, 0, 0, time.UTC)},
		{"12:00", time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)},
		// Still ahead of now, so it means last night.
		{"23:40", time.Date(2026, 2, 17, 23, 40, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_Absolute(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-01 14:30", time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"2026-03-01T14:30", time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"2026-03-01 14:30:05", time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)},
		{"2026-03-01T14:30:00Z", time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"2026-03-01T14:30:00+02:00", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_UsesReferenceLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, loc)
	got, err := ParseTimeFrom("2026-02-18 08:00", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Location() != loc || got.Hour() != 8 {
		t.Errorf("got %v, want 08:00 in %v", got, loc)
	}
}

func TestParseTime_Invalid(t *testing.T) {
	inputs := []string{"", "   ", "yesterday-ish", "-", "-5x", "--5m", "ago", "25:99", "2026-13-01 10:00"}
	for _, input := range inputs {
		if _, err := ParseTimeFrom(input, testNow); err == nil {
			t.Errorf("ParseTimeFrom(%q): expected error", input)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"20", 20 * time.Minute},
		{"0", 0},
		{"45m", 45 * time.Minute},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if err != nil {
			t.Errorf("ParseDuration(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	for _, bad := range []string{"", "-5", "-5m", "soon"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q): expected error", bad)
		}
	}
}
