package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/carelog/internal/models"
)

// Orchestrator owns a client's pending operation queue and drives sync
// passes against an Authority. Local mutations run one at a time; only one
// sync pass may be in flight.
type Orchestrator struct {
	store     LocalStore
	authority Authority

	mu      sync.Mutex // serializes local writes
	syncing atomic.Bool
	offline atomic.Bool

	statusMu   sync.Mutex
	lastSyncAt *time.Time
	lastErr    string

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator over store and authority.
func NewOrchestrator(store LocalStore, authority Authority) *Orchestrator {
	return &Orchestrator{
		store:     store,
		authority: authority,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetOffline switches network mode. Offline clients keep queueing but refuse
// to sync.
func (o *Orchestrator) SetOffline(offline bool) {
	o.offline.Store(offline)
}

// IsOffline reports the current network mode.
func (o *Orchestrator) IsOffline() bool {
	return o.offline.Load()
}

// QueueOperation validates op, assigns its id and origination timestamp and
// appends it to the persisted queue.
func (o *Orchestrator) QueueOperation(op models.Operation) (models.Operation, error) {
	if op.ActorID == "" {
		return op, ErrNoActor
	}
	if err := validate(op); err != nil {
		return op, err
	}
	op.ID = o.newID()
	op.Timestamp = o.now()

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.AppendOperation(op); err != nil {
		return op, fmt.Errorf("queue operation: %w", err)
	}
	slog.Debug("operation queued", "op", op.ID, "kind", op.Kind, "event", op.EventID)
	return op, nil
}

func validate(op models.Operation) error {
	if !op.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	if op.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidOperation)
	}
	if op.Kind != models.OpDelete && op.Patch == nil {
		return fmt.Errorf("%w: %s requires a patch", ErrInvalidOperation, op.Kind)
	}
	if op.Patch != nil && op.Patch.Type != nil && !op.Patch.Type.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidOperation, *op.Patch.Type)
	}
	return nil
}

// ApplyOptimisticUpdate projects op onto the local event cache.
func (o *Orchestrator) ApplyOptimisticUpdate(op models.Operation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	events, err := o.store.Events()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if err := o.store.SaveEvents(Project(events, op)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}

// Submit queues op, projects it locally and, when autoSync is set and the
// client is online, runs a sync pass. Sync failures are logged, not returned.
func (o *Orchestrator) Submit(ctx context.Context, op models.Operation, autoSync bool, opts *Options) (models.Operation, error) {
	queued, err := o.QueueOperation(op)
	if err != nil {
		return queued, err
	}
	if err := o.ApplyOptimisticUpdate(queued); err != nil {
		return queued, err
	}
	if autoSync && !o.IsOffline() {
		if _, err := o.Sync(ctx, opts); err != nil {
			slog.Warn("auto-sync failed", "err", err)
		}
	}
	return queued, nil
}

// ClearPendingOperations empties the queue without syncing.
func (o *Orchestrator) ClearPendingOperations() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.ClearPendingOperations()
}

// Sync pushes the queue to the authority in batches, then reconciles the
// local cache with the authoritative state. A nil opts uses DefaultOptions.
func (o *Orchestrator) Sync(ctx context.Context, opts *Options) (models.SyncResult, error) {
	if o.IsOffline() {
		return models.SyncResult{}, ErrOffline
	}
	release, err := o.begin()
	if err != nil {
		return models.SyncResult{}, err
	}
	defer release()

	cfg := DefaultOptions()
	if opts != nil {
		cfg = opts.normalize()
	}

	var acc models.SyncResult
	worked := false
	for attempt := 0; ; attempt++ {
		err := o.pass(ctx, cfg, &acc, &worked)
		if err == nil {
			o.recordStatus(nil)
			slog.Info("sync complete",
				"applied", len(acc.Applied),
				"conflicts", len(acc.Conflicts),
				"duplicates", len(acc.Duplicates),
				"server_version", acc.ServerVersion)
			return acc, nil
		}
		if errors.Is(err, ErrRejected) {
			o.recordStatus(err)
			return acc, fmt.Errorf("sync: %w", err)
		}
		if ctx.Err() != nil || attempt >= cfg.MaxRetries {
			o.recordStatus(err)
			return acc, fmt.Errorf("sync failed after %d attempt(s): %w", attempt+1, err)
		}
		delay := cfg.RetryDelay << attempt
		slog.Warn("sync attempt failed, retrying",
			"attempt", attempt+1, "max_retries", cfg.MaxRetries, "delay", delay, "err", err)
		if err := o.sleep(ctx, delay); err != nil {
			o.recordStatus(err)
			return acc, err
		}
	}
}

// begin claims the single sync slot for this orchestrator and, when the
// store is shared between processes, the store's sync lock.
func (o *Orchestrator) begin() (func(), error) {
	if !o.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	done := func() { o.syncing.Store(false) }
	locker, ok := o.store.(SyncLocker)
	if !ok {
		return done, nil
	}
	unlock, held, err := locker.TryLockSync()
	if err != nil {
		done()
		return nil, fmt.Errorf("sync lock: %w", err)
	}
	if !held {
		done()
		return nil, ErrSyncInProgress
	}
	return func() {
		unlock()
		done()
	}, nil
}

// pass runs one attempt. Progress from earlier failed attempts is already
// persisted and carried in acc.
func (o *Orchestrator) pass(ctx context.Context, cfg Options, acc *models.SyncResult, worked *bool) error {
	pending, err := o.store.PendingOperations()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(pending) == 0 && !*worked {
		v, err := o.store.ServerVersion()
		if err != nil {
			return fmt.Errorf("read server version: %w", err)
		}
		acc.ServerVersion = v
		return nil
	}

	for _, batch := range Chunk(pending, cfg.BatchSize) {
		res, err := o.authority.Apply(ctx, batch)
		if err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
		*worked = true
		acc.Applied = append(acc.Applied, res.Applied...)
		acc.Conflicts = append(acc.Conflicts, res.Conflicts...)
		acc.Duplicates = append(acc.Duplicates, res.Duplicates...)
		acc.ServerVersion = res.ServerVersion

		// Conflicts are logged before the queue shrinks: a crash in between
		// resubmits the batch, and the authority reports the same records.
		o.mu.Lock()
		err = o.store.AppendConflicts(res.Conflicts)
		if err == nil {
			err = o.store.RemoveOperations(acknowledged(res))
		}
		o.mu.Unlock()
		if err != nil {
			return fmt.Errorf("record batch: %w", err)
		}
	}

	if err := o.store.SetServerVersion(acc.ServerVersion); err != nil {
		return fmt.Errorf("save server version: %w", err)
	}
	return o.reconcile(ctx)
}

// acknowledged returns the ids of every operation the authority settled.
func acknowledged(res models.SyncResult) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, op := range res.Applied {
		add(op.ID)
	}
	for _, c := range res.Conflicts {
		add(c.OperationID)
	}
	for _, id := range res.Duplicates {
		add(id)
	}
	return ids
}

func (o *Orchestrator) reconcile(ctx context.Context) error {
	state, err := o.authority.State(ctx)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mergeLocked(state)
}

func (o *Orchestrator) mergeLocked(state models.ServerState) error {
	pending, err := o.store.PendingOperations()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	pendingEvents := make(map[string]bool, len(pending))
	for _, op := range pending {
		pendingEvents[op.EventID] = true
	}
	local, err := o.store.Events()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if err := o.store.SaveEvents(Merge(local, state, pendingEvents)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := o.store.SetServerVersion(state.Version); err != nil {
		return fmt.Errorf("save server version: %w", err)
	}
	return nil
}

// Pull fetches the authoritative state and merges it without pushing. It
// reports whether a merge happened; an unchanged counter skips the merge.
func (o *Orchestrator) Pull(ctx context.Context) (bool, error) {
	if o.IsOffline() {
		return false, ErrOffline
	}
	release, err := o.begin()
	if err != nil {
		return false, err
	}
	defer release()

	state, err := o.authority.State(ctx)
	if err != nil {
		o.recordStatus(err)
		return false, fmt.Errorf("fetch state: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	known, err := o.store.ServerVersion()
	if err != nil {
		return false, fmt.Errorf("read server version: %w", err)
	}
	if known == state.Version {
		slog.Debug("pull skipped, counter unchanged", "version", known)
		o.recordStatus(nil)
		return false, nil
	}
	if err := o.mergeLocked(state); err != nil {
		o.recordStatus(err)
		return false, err
	}
	o.recordStatus(nil)
	return true, nil
}

func (o *Orchestrator) recordStatus(err error) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	if err != nil {
		o.lastErr = err.Error()
		return
	}
	now := o.now()
	o.lastSyncAt = &now
	o.lastErr = ""
}

// Status returns a snapshot of the client's sync state.
func (o *Orchestrator) Status() (Status, error) {
	st := Status{Syncing: o.syncing.Load(), Offline: o.IsOffline()}
	pending, err := o.store.PendingOperations()
	if err != nil {
		return st, fmt.Errorf("read queue: %w", err)
	}
	st.Pending = len(pending)
	if st.ServerVersion, err = o.store.ServerVersion(); err != nil {
		return st, fmt.Errorf("read server version: %w", err)
	}
	o.statusMu.Lock()
	st.LastSyncAt = o.lastSyncAt
	st.LastError = o.lastErr
	o.statusMu.Unlock()
	return st, nil
}

// NewCreate builds a create operation for a fresh event id.
func NewCreate(actorID string, patch *models.Patch) models.Operation {
	return models.Operation{
		Kind:    models.OpCreate,
		ActorID: actorID,
		EventID: uuid.NewString(),
		Patch:   patch,
	}
}

// NewUpdate builds an update operation against the locally known version of ev.
func NewUpdate(actorID string, ev models.Event, patch *models.Patch) models.Operation {
	return models.Operation{
		Kind:        models.OpUpdate,
		ActorID:     actorID,
		EventID:     ev.ID,
		Patch:       patch,
		BaseVersion: ev.Version,
	}
}

// NewDelete builds a delete operation against the locally known version of ev.
func NewDelete(actorID string, ev models.Event) models.Operation {
	return models.Operation{
		Kind:        models.OpDelete,
		ActorID:     actorID,
		EventID:     ev.ID,
		BaseVersion: ev.Version,
	}
}
