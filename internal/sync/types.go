package sync

import (
	"context"
	"errors"
	"time"

	"github.com/marcus/carelog/internal/models"
)

// Precondition errors. They are returned immediately and never retried.
var (
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrOffline          = errors.New("cannot sync while offline")
	ErrNoActor          = errors.New("no active caregiver selected")
	ErrInvalidOperation = errors.New("invalid operation")
)

// ErrRejected marks an Authority failure that retrying cannot fix, such as a
// malformed batch or a bad credential. Authorities wrap it; Sync surfaces it
// without backing off.
var ErrRejected = errors.New("rejected by authority")

// Authority is the single logical source of truth that resolves batches.
type Authority interface {
	Apply(ctx context.Context, ops []models.Operation) (models.SyncResult, error)
	State(ctx context.Context) (models.ServerState, error)
	Reset(ctx context.Context) error
}

// LocalStore is the durable client-side state the orchestrator drives:
// the event cache, the pending operation queue, the last known authoritative
// counter and the conflict log.
type LocalStore interface {
	Events() ([]models.Event, error)
	SaveEvents(events []models.Event) error

	PendingOperations() ([]models.Operation, error)
	AppendOperation(op models.Operation) error
	RemoveOperations(ids []string) error
	ClearPendingOperations() error

	ServerVersion() (int64, error)
	SetServerVersion(version int64) error

	AppendConflicts(records []models.ConflictRecord) error
}

// SyncLocker is implemented by stores that several processes can open at
// once. TryLockSync takes the store-wide sync lock without waiting; held is
// false when another process already has it.
type SyncLocker interface {
	TryLockSync() (unlock func(), held bool, err error)
}

// Options tunes a sync pass.
type Options struct {
	MaxRetries int           // retry attempts after the first failure
	RetryDelay time.Duration // base delay, doubled per attempt
	BatchSize  int           // operations per Apply round trip
}

// DefaultOptions returns the stock retry and batching policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		RetryDelay: time.Second,
		BatchSize:  50,
	}
}

// normalize fills zero or invalid fields with defaults.
func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	return o
}

// Status is a point-in-time view of a client's sync state.
type Status struct {
	Syncing       bool
	Offline       bool
	Pending       int
	ServerVersion int64
	LastSyncAt    *time.Time
	LastError     string
}
