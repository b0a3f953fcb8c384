package models

import (
	"time"
)

// EventType represents the category of a care event
type EventType string

const (
	EventFeed   EventType = "feed"
	EventDiaper EventType = "diaper"
	EventSleep  EventType = "sleep"
)

// EventTypes lists every valid category in display order.
var EventTypes = []EventType{EventFeed, EventDiaper, EventSleep}

// IsValid reports whether t is one of the known categories.
func (t EventType) IsValid() bool {
	switch t {
	case EventFeed, EventDiaper, EventSleep:
		return true
	}
	return false
}

// OperationKind represents the mutation an operation performs
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// IsValid reports whether k is a known operation kind.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Winner identifies which side of a contested operation prevailed
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Conflict reason codes
const (
	ReasonAlreadyExists       = "already_exists"
	ReasonMissingOrDeleted    = "missing_or_deleted"
	ReasonAlreadyDeleted      = "already_deleted_or_missing"
	ReasonMissingPatch        = "missing_patch"
	ReasonLocalNewer          = "local_newer"
	ReasonRemoteNewer         = "remote_newer"
	ReasonLocalVersionHigher  = "local_version_higher"
	ReasonRemoteVersionHigher = "remote_version_higher"
	ReasonActorTiebreak       = "actor_tiebreak"
)

// Field names reported in conflict records
const (
	FieldEntireEvent = "entire_event"
	FieldDeleted     = "deleted"
)

// Caregiver is an actor that originates operations
type Caregiver struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
}

// Event is a timestamped care record. Events are never removed, only tombstoned.
type Event struct {
	ID             string     `json:"id"`
	CaregiverID    string     `json:"caregiver_id"`
	Type           EventType  `json:"type"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Version        int64      `json:"version"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastModifiedBy string     `json:"last_modified_by"`
	Deleted        bool       `json:"deleted,omitempty"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	c := e
	if e.End != nil {
		end := *e.End
		c.End = &end
	}
	return c
}

// Patch is a partial set of event fields carried by create and update operations.
// Nil fields are left untouched when the patch is applied.
type Patch struct {
	CaregiverID *string    `json:"caregiver_id,omitempty"`
	Type        *EventType `json:"type,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	// Version is the version the author claims for the patched event; it
	// only participates in tie-breaking.
	Version *int64 `json:"version,omitempty"`
}

// Fields returns the JSON names of the fields set in the patch.
func (p *Patch) Fields() []string {
	if p == nil {
		return nil
	}
	var fields []string
	if p.CaregiverID != nil {
		fields = append(fields, "caregiver_id")
	}
	if p.Type != nil {
		fields = append(fields, "type")
	}
	if p.Start != nil {
		fields = append(fields, "start")
	}
	if p.End != nil {
		fields = append(fields, "end")
	}
	if p.Notes != nil {
		fields = append(fields, "notes")
	}
	if p.Version != nil {
		fields = append(fields, "version")
	}
	return fields
}

// ClaimedVersion returns the patch's claimed version, or 0 when absent.
func (p *Patch) ClaimedVersion() int64 {
	if p == nil || p.Version == nil {
		return 0
	}
	return *p.Version
}

// PatchFromEvent builds a full patch describing every user-editable field of e.
func PatchFromEvent(e Event) *Patch {
	caregiver := e.CaregiverID
	typ := e.Type
	start := e.Start
	notes := e.Notes
	p := &Patch{
		CaregiverID: &caregiver,
		Type:        &typ,
		Start:       &start,
		Notes:       &notes,
	}
	if e.End != nil {
		end := *e.End
		p.End = &end
	}
	return p
}

// Operation is a single queued mutation against one event
type Operation struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	ActorID     string        `json:"actor_id"`
	Kind        OperationKind `json:"kind"`
	EventID     string        `json:"event_id"`
	Patch       *Patch        `json:"patch,omitempty"`
	BaseVersion int64         `json:"base_version"`
}

// ConflictRecord describes the resolution of a contested or rejected operation
type ConflictRecord struct {
	EventID     string    `json:"event_id"`
	OperationID string    `json:"operation_id"`
	ActorID     string    `json:"actor_id"`
	Fields      []string  `json:"fields"`
	Winner      Winner    `json:"winner"`
	Reason      string    `json:"reason"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// SyncResult is the outcome of applying one or more batches
type SyncResult struct {
	Applied   []Operation      `json:"applied"`
	Conflicts []ConflictRecord `json:"conflicts"`
	// Duplicates holds ids of operations the authority had already processed.
	Duplicates    []string `json:"duplicates,omitempty"`
	ServerVersion int64    `json:"server_version"`
}

// ServerState is the authoritative snapshot used for reconciliation
type ServerState struct {
	Events     []Event `json:"events"`
	Tombstones []Event `json:"tombstones,omitempty"`
	Version    int64   `json:"version"`
}
