package sync

import "github.com/marcus/carelog/internal/models"

// applyPatch copies the set fields of p onto ev. The claimed version is not
// copied; versions are only assigned by whoever applies the operation.
func applyPatch(ev *models.Event, p *models.Patch) {
	if p == nil {
		return
	}
	if p.CaregiverID != nil {
		ev.CaregiverID = *p.CaregiverID
	}
	if p.Type != nil {
		ev.Type = *p.Type
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		end := *p.End
		ev.End = &end
	}
	if p.Notes != nil {
		ev.Notes = *p.Notes
	}
}

func stamp(ev *models.Event, op models.Operation) {
	ev.UpdatedAt = op.Timestamp
	ev.LastModifiedBy = op.ActorID
}

func newEventFromCreate(op models.Operation) models.Event {
	ev := models.Event{ID: op.EventID, CaregiverID: op.ActorID}
	applyPatch(&ev, op.Patch)
	stamp(&ev, op)
	return ev
}

// Project applies op to a local event list as if the authority accepted it
// unconditionally. It never detects conflicts and returns a new slice; the
// input is not modified.
func Project(events []models.Event, op models.Operation) []models.Event {
	out := make([]models.Event, 0, len(events)+1)
	idx := -1
	for i, e := range events {
		if e.ID == op.EventID {
			idx = i
		}
		out = append(out, e.Clone())
	}

	switch op.Kind {
	case models.OpCreate:
		ev := newEventFromCreate(op)
		ev.Version = 1
		if idx >= 0 {
			out[idx] = ev
		} else {
			out = append(out, ev)
		}
	case models.OpUpdate:
		if idx < 0 {
			return out
		}
		applyPatch(&out[idx], op.Patch)
		stamp(&out[idx], op)
		out[idx].Version++
	case models.OpDelete:
		if idx < 0 {
			return out
		}
		out[idx].Deleted = true
		stamp(&out[idx], op)
		out[idx].Version++
	}
	return out
}
