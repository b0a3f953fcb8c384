package sync

import (
	"time"

	"github.com/marcus/carelog/internal/models"
)

// State is the authoritative entity store a batch is resolved against.
type State struct {
	Events map[string]*models.Event
	// Seen is the ledger of processed operation ids. The value is the
	// conflict recorded for the operation, nil when it applied cleanly.
	Seen    map[string]*models.ConflictRecord
	Version int64
}

// NewState returns an empty authoritative state at version 0.
func NewState() *State {
	return &State{
		Events: make(map[string]*models.Event),
		Seen:   make(map[string]*models.ConflictRecord),
	}
}

// Decision records how a single operation was resolved. A contested update
// that the local side won is both Applied and carries a Conflict. A
// Duplicate carries the Conflict stored when it was first resolved, if any.
type Decision struct {
	Op        models.Operation
	Applied   bool
	Duplicate bool
	Conflict  *models.ConflictRecord
}

// BatchResult is the outcome of ApplyBatch.
type BatchResult struct {
	Result    models.SyncResult
	Decisions []Decision
	// Touched holds ids of events whose stored copy changed.
	Touched map[string]bool
}

// ApplyBatch resolves ops against st in processing order and mutates st in
// place. Every operation in ops appears exactly once in the result, as
// applied, conflicted or duplicate.
func ApplyBatch(st *State, ops []models.Operation, now time.Time) BatchResult {
	br := BatchResult{Touched: make(map[string]bool)}
	for _, op := range SortOperations(ops) {
		d := st.resolve(op, now)
		br.Decisions = append(br.Decisions, d)
		switch {
		case d.Duplicate:
			br.Result.Duplicates = append(br.Result.Duplicates, op.ID)
			if d.Conflict != nil {
				br.Result.Conflicts = append(br.Result.Conflicts, *d.Conflict)
			}
			continue
		case d.Applied:
			br.Result.Applied = append(br.Result.Applied, op)
			br.Touched[op.EventID] = true
		}
		if d.Conflict != nil {
			br.Result.Conflicts = append(br.Result.Conflicts, *d.Conflict)
		}
		st.Seen[op.ID] = d.Conflict
	}
	br.Result.ServerVersion = st.Version
	return br
}

func (st *State) resolve(op models.Operation, now time.Time) Decision {
	d := Decision{Op: op}
	if prior, ok := st.Seen[op.ID]; ok {
		d.Duplicate = true
		if prior != nil {
			c := *prior
			d.Conflict = &c
		}
		return d
	}

	reject := func(fields []string, reason string) Decision {
		d.Conflict = conflictFor(op, fields, models.WinnerRemote, reason, now)
		return d
	}

	current, exists := st.Events[op.EventID]
	switch op.Kind {
	case models.OpCreate:
		if exists {
			return reject([]string{models.FieldEntireEvent}, models.ReasonAlreadyExists)
		}
		if op.Patch == nil {
			return reject([]string{models.FieldEntireEvent}, models.ReasonMissingPatch)
		}
		ev := newEventFromCreate(op)
		ev.Version = 1
		st.Events[op.EventID] = &ev

	case models.OpUpdate:
		if !exists || current.Deleted {
			return reject([]string{models.FieldEntireEvent}, models.ReasonMissingOrDeleted)
		}
		if op.Patch == nil {
			return reject([]string{models.FieldEntireEvent}, models.ReasonMissingPatch)
		}
		if op.BaseVersion < current.Version {
			v := Decide(
				Candidate{Timestamp: op.Timestamp, Version: op.Patch.ClaimedVersion(), ActorID: op.ActorID},
				Candidate{Timestamp: current.UpdatedAt, Version: current.Version, ActorID: current.LastModifiedBy},
			)
			d.Conflict = conflictFor(op, op.Patch.Fields(), v.Winner, v.Reason, now)
			if v.Winner != models.WinnerLocal {
				return d
			}
		}
		applyPatch(current, op.Patch)
		stamp(current, op)
		current.Version++

	case models.OpDelete:
		if !exists || current.Deleted {
			return reject([]string{models.FieldDeleted}, models.ReasonAlreadyDeleted)
		}
		current.Deleted = true
		stamp(current, op)
		current.Version++

	default:
		return reject([]string{models.FieldEntireEvent}, models.ReasonMissingPatch)
	}

	st.Version++
	d.Applied = true
	return d
}

func conflictFor(op models.Operation, fields []string, winner models.Winner, reason string, now time.Time) *models.ConflictRecord {
	return &models.ConflictRecord{
		EventID:     op.EventID,
		OperationID: op.ID,
		ActorID:     op.ActorID,
		Fields:      fields,
		Winner:      winner,
		Reason:      reason,
		ResolvedAt:  now,
	}
}
