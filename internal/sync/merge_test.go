package sync

import (
	"testing"

	"github.com/marcus/carelog/internal/models"
)

func TestProject(t *testing.T) {
	events := Project(nil, createOp("op1", "alice", "e1", at(0)))
	if len(events) != 1 || events[0].Version != 1 || events[0].LastModifiedBy != "alice" {
		t.Fatalf("create: %+v", events)
	}

	updated := Project(events, updateOp("op2", "bob", "e1", at(1), 1, "changed"))
	if updated[0].Notes != "changed" || updated[0].Version != 2 || updated[0].LastModifiedBy != "bob" {
		t.Fatalf("update: %+v", updated[0])
	}
	if events[0].Notes != "Feeding session" {
		t.Fatalf("input mutated: %+v", events[0])
	}

	deleted := Project(updated, deleteOp("op3", "bob", "e1", at(2), 2))
	if !deleted[0].Deleted || deleted[0].Version != 3 {
		t.Fatalf("delete: %+v", deleted[0])
	}
	if len(Visible(deleted)) != 0 {
		t.Fatal("tombstone should be hidden")
	}

	missing := Project(updated, updateOp("op4", "bob", "nope", at(3), 1, "x"))
	if len(missing) != 1 {
		t.Fatalf("update of unknown event added something: %+v", missing)
	}
}

func TestMerge(t *testing.T) {
	local := []models.Event{
		{ID: "synced", Notes: "stale", Version: 1},
		{ID: "pending-ahead", Notes: "mine", Version: 4},
		{ID: "pending-tie", Notes: "mine", Version: 2},
		{ID: "rejected", Notes: "optimistic", Version: 1},
		{ID: "unsent", Notes: "new", Version: 1},
	}
	state := models.ServerState{
		Events: []models.Event{
			{ID: "synced", Notes: "fresh", Version: 2},
			{ID: "pending-ahead", Notes: "theirs", Version: 3},
			{ID: "pending-tie", Notes: "theirs", Version: 2},
			{ID: "remote-only", Notes: "theirs", Version: 1},
		},
		Tombstones: []models.Event{{ID: "gone", Version: 2}},
		Version:    9,
	}
	pending := map[string]bool{"pending-ahead": true, "pending-tie": true, "unsent": true}

	merged := Merge(local, state, pending)
	byID := make(map[string]models.Event)
	for _, e := range merged {
		byID[e.ID] = e
	}

	checks := map[string]string{
		"synced":        "fresh",
		"pending-ahead": "mine",
		"pending-tie":   "theirs",
		"unsent":        "new",
		"remote-only":   "theirs",
	}
	for id, want := range checks {
		if got := byID[id].Notes; got != want {
			t.Errorf("%s: got %q, want %q", id, got, want)
		}
	}
	if _, ok := byID["rejected"]; ok {
		t.Error("event unknown to the authority with nothing pending should be dropped")
	}
	if !byID["gone"].Deleted {
		t.Error("tombstone should arrive deleted")
	}
	if len(merged) != 6 {
		t.Errorf("merged count: got %d, want 6", len(merged))
	}
}
