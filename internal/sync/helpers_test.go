package sync

import (
	"time"

	"github.com/marcus/carelog/internal/models"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func strp(s string) *string { return &s }

func notesPatch(notes string) *models.Patch {
	return &models.Patch{Notes: strp(notes)}
}

func feedPatch(notes string) *models.Patch {
	typ := models.EventFeed
	start := base
	return &models.Patch{Type: &typ, Start: &start, Notes: strp(notes)}
}

func createOp(id, actor, event string, ts time.Time) models.Operation {
	return models.Operation{ID: id, Timestamp: ts, ActorID: actor, Kind: models.OpCreate, EventID: event, Patch: feedPatch("Feeding session")}
}

func updateOp(id, actor, event string, ts time.Time, baseVersion int64, notes string) models.Operation {
	return models.Operation{ID: id, Timestamp: ts, ActorID: actor, Kind: models.OpUpdate, EventID: event, Patch: notesPatch(notes), BaseVersion: baseVersion}
}

func deleteOp(id, actor, event string, ts time.Time, baseVersion int64) models.Operation {
	return models.Operation{ID: id, Timestamp: ts, ActorID: actor, Kind: models.OpDelete, EventID: event, BaseVersion: baseVersion}
}
