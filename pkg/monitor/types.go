package monitor

import (
	"context"
	"time"

	"github.com/marcus/carelog/internal/models"
	clsync "github.com/marcus/carelog/internal/sync"
)

// Store is the local data the monitor reads and the mode it toggles.
type Store interface {
	Events() ([]models.Event, error)
	PendingOperations() ([]models.Operation, error)
	ListCaregivers() ([]models.Caregiver, error)
	RecentConflicts(limit int, since *time.Time) ([]models.ConflictRecord, error)
	SetOffline(offline bool) error
}

// Syncer runs sync passes and reports orchestrator state.
type Syncer interface {
	Sync(ctx context.Context, opts *clsync.Options) (models.SyncResult, error)
	Status() (clsync.Status, error)
	SetOffline(offline bool)
	IsOffline() bool
}

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Events    []models.Event
	Pending   map[string]bool
	Names     map[string]string
	Conflicts []models.ConflictRecord
	Status    clsync.Status
	Err       error
}

// SyncDoneMsg reports the outcome of a sync started from the monitor.
type SyncDoneMsg struct {
	Result models.SyncResult
	Err    error
	At     time.Time
}

// ClearStatusMsg clears the transient status line.
type ClearStatusMsg struct{}
