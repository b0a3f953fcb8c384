package output

import (
	"strings"
	"testing"
	"time"

	"github.com/marcus/carelog/internal/models"
)

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago      time.Duration
		expected string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{1 * time.Minute, "1m ago"},
		{59 * time.Minute, "59m ago"},
		{1 * time.Hour, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}
	for _, tc := range tests {
		if got := FormatTimeAgo(time.Now().Add(-tc.ago)); got != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.ago, got, tc.expected)
		}
	}

	old := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if got := FormatTimeAgo(old); got != "2024-01-15" {
		t.Errorf("FormatTimeAgo(old) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{45 * time.Minute, "45m"},
		{60 * time.Minute, "1h"},
		{80 * time.Minute, "1h20m"},
		{125*time.Minute + 40*time.Second, "2h06m"},
		{-10 * time.Minute, "10m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0f3c9a7e-1111-2222-3333-444444444444"); got != "0f3c9a7e" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("e1"); got != "e1" {
		t.Errorf("ShortID short = %q", got)
	}
}

func TestFormatType(t *testing.T) {
	for _, typ := range models.EventTypes {
		if !strings.Contains(FormatType(typ), string(typ)) {
			t.Errorf("FormatType(%s) missing type name", typ)
		}
	}
	if got := FormatType("bath"); got != "[bath]" {
		t.Errorf("unknown type = %q", got)
	}
}

func sampleEvent() *models.Event {
	start := time.Date(2026, 2, 18, 8, 0, 0, 0, time.Local)
	end := start.Add(35 * time.Minute)
	return &models.Event{
		ID:             "0f3c9a7e-aaaa",
		CaregiverID:    "cg-1",
		Type:           models.EventFeed,
		Start:          start,
		End:            &end,
		Notes:          "left side",
		Version:        2,
		UpdatedAt:      time.Now(),
		LastModifiedBy: "cg-2",
	}
}

func TestFormatEventShort(t *testing.T) {
	ev := sampleEvent()
	names := map[string]string{"cg-1": "Parent"}

	got := FormatEventShort(ev, names, false)
	for _, want := range []string{"0f3c9a7e", "feed", "08:00-08:35 (35m)", "Parent", "left side", "v2"} {
		if !strings.Contains(got, want) {
			t.Errorf("short format missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, "[pending]") || strings.Contains(got, "[deleted]") {
		t.Errorf("unexpected markers: %s", got)
	}

	ev.Deleted = true
	got = FormatEventShort(ev, nil, true)
	if !strings.Contains(got, "[pending]") || !strings.Contains(got, "[deleted]") {
		t.Errorf("expected markers: %s", got)
	}
	if !strings.Contains(got, "cg-1") {
		t.Errorf("expected raw caregiver id without names: %s", got)
	}
}

func TestFormatEventLong(t *testing.T) {
	ev := sampleEvent()
	names := map[string]string{"cg-1": "Parent", "cg-2": "Nanny"}
	conflicts := []models.ConflictRecord{{
		EventID: ev.ID, OperationID: "op-123456789", ActorID: "cg-2",
		Fields: []string{"notes"}, Winner: models.WinnerRemote,
		Reason: models.ReasonRemoteNewer, ResolvedAt: time.Now(),
	}}

	got := FormatEventLong(ev, names, conflicts, true)
	for _, want := range []string{"Caregiver: Parent", "Notes: left side", "by Nanny", "CONFLICTS:", "remote_newer", "lost", "not yet synced"} {
		if !strings.Contains(got, want) {
			t.Errorf("long format missing %q:\n%s", want, got)
		}
	}
}

func TestFormatEventLongNoOptional(t *testing.T) {
	ev := &models.Event{ID: "e1", Type: models.EventDiaper, Start: time.Now(), Version: 1, UpdatedAt: time.Now()}
	got := FormatEventLong(ev, nil, nil, false)
	if strings.Contains(got, "Notes:") || strings.Contains(got, "CONFLICTS") || strings.Contains(got, "DELETED") {
		t.Errorf("unexpected sections:\n%s", got)
	}
	if !strings.Contains(got, "Caregiver: unknown") {
		t.Errorf("expected unknown caregiver:\n%s", got)
	}
}

func TestConflictMarkdown(t *testing.T) {
	empty := ConflictMarkdown("e1", nil, nil)
	if !strings.Contains(empty, "No conflicts recorded") {
		t.Errorf("empty history: %s", empty)
	}

	md := ConflictMarkdown("e1", []models.ConflictRecord{{
		EventID: "e1", ActorID: "cg-1", Fields: []string{"notes", "end"},
		Winner: models.WinnerLocal, Reason: models.ReasonLocalNewer,
		ResolvedAt: time.Date(2026, 2, 18, 9, 0, 0, 0, time.Local),
	}}, map[string]string{"cg-1": "Parent"})
	for _, want := range []string{"| Resolved |", "2026-02-18 09:00", "Parent", "notes, end", "local newer"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestFormatSyncResult(t *testing.T) {
	res := models.SyncResult{
		Applied:       make([]models.Operation, 3),
		Conflicts:     make([]models.ConflictRecord, 1),
		ServerVersion: 9,
	}
	if got := FormatSyncResult(res); got != "Synced: 3 applied, 1 conflicts (server v9)" {
		t.Errorf("FormatSyncResult = %q", got)
	}
	res.Duplicates = []string{"op1"}
	if got := FormatSyncResult(res); !strings.Contains(got, "1 already applied") {
		t.Errorf("FormatSyncResult with duplicates = %q", got)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	got, err := RenderMarkdownWithWidth("   ", 40)
	if err != nil || got != "" {
		t.Errorf("RenderMarkdownWithWidth(blank) = %q, %v", got, err)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("conflicts"); got != "\nCONFLICTS:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}
