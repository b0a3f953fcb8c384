package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/marcus/carelog/internal/serverdb"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/marcus/carelog/internal/syncclient"
	"github.com/marcus/carelog/internal/syncconfig"
)

const sqliteScheme = "sqlite://"

// app bundles what most commands need: the local database, the authority
// and an orchestrator wired to both.
type app struct {
	db        *db.DB
	authority clsync.Authority
	orch      *clsync.Orchestrator
	opts      clsync.Options
	closers   []func() error
}

// openApp opens the local database and the configured authority.
func openApp() (*app, error) {
	database, err := db.Open(getBaseDir())
	if err != nil {
		if errors.Is(err, db.ErrNotInitialized) {
			return nil, fmt.Errorf("%w (run: carelog init)", err)
		}
		return nil, err
	}
	if database.Rebuilt() {
		output.Warning("local data was unreadable and has been rebuilt; run sync to restore it")
	}

	a := &app{db: database, opts: syncconfig.GetSyncOptions()}
	a.closers = append(a.closers, database.Close)

	authority, closeAuthority, err := openAuthority(syncconfig.GetServerURL())
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeAuthority != nil {
		a.closers = append(a.closers, closeAuthority)
	}
	a.authority = authority
	a.orch = clsync.NewOrchestrator(database, authority)

	offline, err := database.Offline()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch.SetOffline(offline)
	return a, nil
}

// openAuthority resolves a server location. http(s) URLs talk to a
// carelog-sync server; sqlite://PATH opens an authority database directly,
// which lets several local data dirs share one authority without a server.
func openAuthority(location string) (clsync.Authority, func() error, error) {
	if path, ok := strings.CutPrefix(location, sqliteScheme); ok {
		store, err := serverdb.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open authority %s: %w", path, err)
		}
		return store, store.Close, nil
	}
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return nil, nil, fmt.Errorf("unsupported sync url %q (want http://, https:// or %s)", location, sqliteScheme)
	}
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, nil, fmt.Errorf("device id: %w", err)
	}
	client := syncclient.New(location, deviceID)
	client.AdminToken = syncconfig.GetAdminToken()
	return client, nil, nil
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Debug("close", "err", err)
		}
	}
}

// actorID returns the current caregiver's id, or "" when none is selected.
func (a *app) actorID() (string, error) {
	c, err := a.db.CurrentCaregiver()
	if err != nil || c == nil {
		return "", err
	}
	return c.ID, nil
}

// caregiverNames maps caregiver ids to display names.
func (a *app) caregiverNames() map[string]string {
	names := make(map[string]string)
	list, err := a.db.ListCaregivers()
	if err != nil {
		slog.Debug("list caregivers", "err", err)
		return names
	}
	for _, c := range list {
		names[c.ID] = c.Name
	}
	return names
}

// pendingEvents returns the ids of events with queued operations.
func (a *app) pendingEvents() map[string]bool {
	pending := make(map[string]bool)
	ops, err := a.db.PendingOperations()
	if err != nil {
		slog.Debug("read queue", "err", err)
		return pending
	}
	for _, op := range ops {
		pending[op.EventID] = true
	}
	return pending
}

// submit queues op, applies it locally and auto-syncs when configured.
func (a *app) submit(ctx context.Context, op models.Operation) (models.Operation, error) {
	actor, err := a.actorID()
	if err != nil {
		return op, err
	}
	op.ActorID = actor
	queued, err := a.orch.Submit(ctx, op, syncconfig.GetAutoSyncEnabled(), &a.opts)
	if errors.Is(err, clsync.ErrNoActor) {
		return queued, fmt.Errorf("%w (run: carelog caregiver use)", err)
	}
	if err != nil {
		return queued, err
	}
	a.persistSyncTime()
	return queued, nil
}

// sync runs a full pass and records when it last succeeded.
func (a *app) sync(ctx context.Context) (models.SyncResult, error) {
	res, err := a.orch.Sync(ctx, &a.opts)
	a.persistSyncTime()
	return res, err
}

// persistSyncTime carries the orchestrator's in-memory last sync time into
// the local database so later invocations can report it.
func (a *app) persistSyncTime() {
	st, err := a.orch.Status()
	if err != nil || st.LastSyncAt == nil {
		return
	}
	if err := a.db.SetLastSyncAt(*st.LastSyncAt); err != nil {
		slog.Debug("save last sync time", "err", err)
	}
}

// findEvent resolves a full or prefix event id among local events.
func (a *app) findEvent(idOrPrefix string) (*models.Event, error) {
	ev, err := a.db.FindEvent(idOrPrefix)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("event %q not found", idOrPrefix)
	}
	return ev, nil
}
