// Package syncharness drives several carelog clients against one shared
// authority so multi-device scenarios can be replayed deterministically in
// tests. Each client has its own on-disk local database and orchestrator;
// the authority is a real SQLite-backed serverdb opened through the cgo
// driver, independent of the pure-Go driver the clients use.
package syncharness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/serverdb"
	clsync "github.com/marcus/carelog/internal/sync"
)

// ErrInjected is returned by a FlakyAuthority when a failure is scheduled.
var ErrInjected = errors.New("injected authority failure")

// FlakyAuthority wraps an authority and fails a scheduled number of Apply
// calls, either before delegating or after the batch has been committed.
type FlakyAuthority struct {
	clsync.Authority

	mu       sync.Mutex
	failNext int
	loseNext int
	applies  int
	states   int
}

// FailNext makes the next n Apply calls fail with ErrInjected.
func (f *FlakyAuthority) FailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

// LoseNext makes the next n Apply calls commit the batch and then fail with
// ErrInjected, as if the response were lost on the way back.
func (f *FlakyAuthority) LoseNext(n int) {
	f.mu.Lock()
	f.loseNext = n
	f.mu.Unlock()
}

// Apply implements clsync.Authority.
func (f *FlakyAuthority) Apply(ctx context.Context, ops []models.Operation) (models.SyncResult, error) {
	f.mu.Lock()
	f.applies++
	fail := f.failNext > 0
	if fail {
		f.failNext--
	}
	lose := !fail && f.loseNext > 0
	if lose {
		f.loseNext--
	}
	f.mu.Unlock()
	if fail {
		return models.SyncResult{}, ErrInjected
	}
	res, err := f.Authority.Apply(ctx, ops)
	if err == nil && lose {
		return models.SyncResult{}, ErrInjected
	}
	return res, err
}

// State implements clsync.Authority.
func (f *FlakyAuthority) State(ctx context.Context) (models.ServerState, error) {
	f.mu.Lock()
	f.states++
	f.mu.Unlock()
	return f.Authority.State(ctx)
}

// Calls returns how many Apply and State calls reached the wrapper.
func (f *FlakyAuthority) Calls() (applies, states int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies, f.states
}

// Client is one simulated device with a selected caregiver.
type Client struct {
	Name      string
	ActorID   string
	DB        *db.DB
	Orch      *clsync.Orchestrator
	Authority *FlakyAuthority
}

// Harness owns a shared authority and a set of clients.
type Harness struct {
	t       *testing.T
	Store   *serverdb.ServerDB
	Clients map[string]*Client
	names   []string
	Options clsync.Options
}

// NewHarness creates an authority and one client per name.
func NewHarness(t *testing.T, names ...string) *Harness {
	t.Helper()

	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "authority.db")+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		t.Fatalf("open authority: %v", err)
	}
	conn.SetMaxOpenConns(1)
	store, err := serverdb.New(conn)
	if err != nil {
		t.Fatalf("init authority: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &Harness{
		t:       t,
		Store:   store,
		Clients: make(map[string]*Client, len(names)),
		Options: clsync.Options{MaxRetries: 3, RetryDelay: 0, BatchSize: 50},
	}
	for _, name := range names {
		h.addClient(name)
	}
	return h
}

func (h *Harness) addClient(name string) {
	h.t.Helper()
	local, err := db.Initialize(h.t.TempDir())
	if err != nil {
		h.t.Fatalf("init client %s: %v", name, err)
	}
	h.t.Cleanup(func() { local.Close() })

	c, err := local.AddCaregiver(name, "device-"+name)
	if err != nil {
		h.t.Fatalf("add caregiver %s: %v", name, err)
	}
	if err := local.SetCurrentCaregiver(c.ID); err != nil {
		h.t.Fatalf("select caregiver %s: %v", name, err)
	}

	auth := &FlakyAuthority{Authority: h.Store}
	h.Clients[name] = &Client{
		Name:      name,
		ActorID:   c.ID,
		DB:        local,
		Orch:      clsync.NewOrchestrator(local, auth),
		Authority: auth,
	}
	h.names = append(h.names, name)
}

// Client returns the named client or fails the test.
func (h *Harness) Client(name string) *Client {
	h.t.Helper()
	c, ok := h.Clients[name]
	if !ok {
		h.t.Fatalf("unknown client %q", name)
	}
	return c
}

// submit queues op on the client and projects it locally without syncing.
// A short pause keeps origination timestamps strictly ordered by call order.
func (h *Harness) submit(name string, op models.Operation) models.Operation {
	h.t.Helper()
	c := h.Client(name)
	op.ActorID = c.ActorID
	queued, err := c.Orch.Submit(context.Background(), op, false, nil)
	if err != nil {
		h.t.Fatalf("%s: submit %s: %v", name, op.Kind, err)
	}
	time.Sleep(time.Millisecond)
	return queued
}

// Create queues a new event of typ with notes on the named client.
func (h *Harness) Create(name string, typ models.EventType, notes string) string {
	h.t.Helper()
	start := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	op := h.submit(name, clsync.NewCreate("", &models.Patch{Type: &typ, Start: &start, Notes: &notes}))
	return op.EventID
}

// UpdateNotes queues a notes edit against the client's local copy of eventID.
func (h *Harness) UpdateNotes(name, eventID, notes string) models.Operation {
	h.t.Helper()
	ev := h.LocalEvent(name, eventID)
	if ev == nil {
		h.t.Fatalf("%s: event %s not in local cache", name, eventID)
	}
	return h.submit(name, clsync.NewUpdate("", *ev, &models.Patch{Notes: &notes}))
}

// Delete queues a delete against the client's local copy of eventID.
func (h *Harness) Delete(name, eventID string) models.Operation {
	h.t.Helper()
	ev := h.LocalEvent(name, eventID)
	if ev == nil {
		h.t.Fatalf("%s: event %s not in local cache", name, eventID)
	}
	return h.submit(name, clsync.NewDelete("", *ev))
}

// Sync runs a full sync pass on the named client.
func (h *Harness) Sync(name string) (models.SyncResult, error) {
	h.t.Helper()
	opts := h.Options
	return h.Client(name).Orch.Sync(context.Background(), &opts)
}

// MustSync runs Sync and fails the test on error.
func (h *Harness) MustSync(name string) models.SyncResult {
	h.t.Helper()
	res, err := h.Sync(name)
	if err != nil {
		h.t.Fatalf("%s: sync: %v", name, err)
	}
	return res
}

// SyncAll syncs every client in creation order, then once more so every
// client sees the final authoritative state.
func (h *Harness) SyncAll() {
	h.t.Helper()
	for round := 0; round < 2; round++ {
		for _, name := range h.names {
			h.MustSync(name)
		}
	}
}

// LocalEvent reads eventID from the named client's cache, including tombstones.
func (h *Harness) LocalEvent(name, eventID string) *models.Event {
	h.t.Helper()
	ev, err := h.Client(name).DB.GetEvent(eventID)
	if err != nil {
		h.t.Fatalf("%s: get event: %v", name, err)
	}
	return ev
}

// AuthorityEvent reads eventID from the authority, including tombstones.
func (h *Harness) AuthorityEvent(eventID string) *models.Event {
	h.t.Helper()
	ev, err := h.Store.Event(context.Background(), eventID)
	if err != nil {
		h.t.Fatalf("authority event: %v", err)
	}
	return ev
}

// Pending returns the queue length of the named client.
func (h *Harness) Pending(name string) int {
	h.t.Helper()
	n, err := h.Client(name).DB.PendingCount()
	if err != nil {
		h.t.Fatalf("%s: pending: %v", name, err)
	}
	return n
}

// AssertConverged checks every client's visible events and counter match the
// authority exactly.
func (h *Harness) AssertConverged() {
	h.t.Helper()
	state, err := h.Store.State(context.Background())
	if err != nil {
		h.t.Fatalf("authority state: %v", err)
	}
	want := fingerprint(state.Events)
	for _, name := range h.names {
		c := h.Clients[name]
		events, err := c.DB.Events()
		if err != nil {
			h.t.Fatalf("%s: events: %v", name, err)
		}
		if got := fingerprint(clsync.Visible(events)); got != want {
			h.t.Errorf("%s diverged from authority:\n  client:    %s\n  authority: %s", name, got, want)
		}
		v, err := c.DB.ServerVersion()
		if err != nil {
			h.t.Fatalf("%s: server version: %v", name, err)
		}
		if v != state.Version {
			h.t.Errorf("%s counter = %d, authority = %d", name, v, state.Version)
		}
	}
}

// fingerprint renders the fields that must agree after convergence.
func fingerprint(events []models.Event) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, fmt.Sprintf("%s@v%d[%s|%s|%s]", e.ID, e.Version, e.Type, e.Notes, e.LastModifiedBy))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
