package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/marcus/carelog/internal/models"
	"github.com/spf13/pflag"
)

func timeFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addTimeFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return fs
}

func TestPatchFromFlagsOnlyChangedFields(t *testing.T) {
	p, err := patchFromFlags(timeFlags(t, "--notes", "left side"), nil)
	if err != nil {
		t.Fatalf("patchFromFlags: %v", err)
	}
	if p.Start != nil || p.End != nil || p.Type != nil {
		t.Fatalf("unexpected fields set: %+v", p)
	}
	if p.Notes == nil || *p.Notes != "left side" {
		t.Fatalf("notes = %v", p.Notes)
	}
	if got := p.Fields(); len(got) != 1 || got[0] != "notes" {
		t.Fatalf("Fields() = %v", got)
	}
}

func TestPatchFromFlagsDurationFromStart(t *testing.T) {
	p, err := patchFromFlags(timeFlags(t, "--start", "2026-02-18 09:00", "--duration", "20"), nil)
	if err != nil {
		t.Fatalf("patchFromFlags: %v", err)
	}
	if p.Start == nil || p.End == nil {
		t.Fatal("expected start and end")
	}
	if d := p.End.Sub(*p.Start); d != 20*time.Minute {
		t.Fatalf("duration = %v, want 20m", d)
	}
}

func TestPatchFromFlagsDurationFromExistingEvent(t *testing.T) {
	start := time.Date(2026, 2, 18, 9, 0, 0, 0, time.Local)
	ev := &models.Event{ID: "ev-1", Start: start}

	p, err := patchFromFlags(timeFlags(t, "--duration", "1h15m"), ev)
	if err != nil {
		t.Fatalf("patchFromFlags: %v", err)
	}
	if p.Start != nil {
		t.Fatal("start should stay untouched")
	}
	if want := start.Add(75 * time.Minute); p.End == nil || !p.End.Equal(want) {
		t.Fatalf("end = %v, want %v", p.End, want)
	}
}

func TestPatchFromFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"end and duration", []string{"--end", "now", "--duration", "5"}, "either --end or --duration"},
		{"bad start", []string{"--start", "yesterday-ish"}, "--start"},
		{"bad duration", []string{"--duration", "-5"}, "--duration"},
		{"end before start", []string{"--start", "2026-02-18 10:00", "--end", "2026-02-18 09:00"}, "end is before start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := patchFromFlags(timeFlags(t, tt.args...), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEventFilter(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	events := []models.Event{
		{ID: "a", Type: models.EventFeed, CaregiverID: "cg-1", Start: now.Add(-2 * time.Hour)},
		{ID: "b", Type: models.EventSleep, CaregiverID: "cg-2", Start: now.Add(-1 * time.Hour)},
		{ID: "c", Type: models.EventFeed, CaregiverID: "cg-2", Start: now.Add(-20 * time.Hour)},
		{ID: "d", Type: models.EventDiaper, CaregiverID: "cg-1", Start: now.Add(-30 * time.Minute), Deleted: true},
	}

	ids := func(evs []models.Event) string {
		var out []string
		for _, e := range evs {
			out = append(out, e.ID)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name   string
		filter eventFilter
		want   string
	}{
		{"visible newest first", eventFilter{}, "b,a,c"},
		{"include deleted", eventFilter{all: true}, "d,b,a,c"},
		{"today", eventFilter{today: true}, "b,a"},
		{"by type", eventFilter{typ: models.EventFeed}, "a,c"},
		{"by caregiver", eventFilter{caregiverID: "cg-2"}, "b,c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(tt.filter.apply(events, now)); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)
	end := func(d time.Duration) *time.Time { e := now.Add(d); return &e }

	events := []models.Event{
		{ID: "a", Type: models.EventSleep, Start: now.Add(-2 * time.Hour), End: end(-time.Hour)},
		{ID: "b", Type: models.EventSleep, Start: now.Add(-30 * time.Minute), End: end(-10 * time.Minute)},
		{ID: "c", Type: models.EventFeed, Start: now.Add(-20 * time.Hour)},
		{ID: "d", Type: models.EventDiaper, Start: now.Add(-time.Hour), Deleted: true},
	}
	got := summarize(events, midnight)

	byType := map[models.EventType]typeSummary{}
	for _, s := range got {
		byType[s.Type] = s
	}
	if s := byType[models.EventSleep]; s.Count != 2 || s.Total != 80*time.Minute || s.Last.ID != "b" {
		t.Fatalf("sleep = %+v", s)
	}
	if s := byType[models.EventFeed]; s.Count != 0 || s.Last == nil || s.Last.ID != "c" {
		t.Fatalf("feed = %+v", s)
	}
	if s := byType[models.EventDiaper]; s.Count != 0 || s.Last != nil {
		t.Fatalf("deleted diaper counted: %+v", s)
	}
}
