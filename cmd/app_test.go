package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/serverdb"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/marcus/carelog/internal/syncclient"
)

// useTempEnv points the data dir, config dir and authority at temp paths.
func useTempEnv(t *testing.T, autoSync bool) (dataDir, authorityPath string) {
	t.Helper()
	dataDir = t.TempDir()
	authorityPath = filepath.Join(t.TempDir(), "authority.db")

	prev := baseDir
	baseDir = dataDir
	t.Cleanup(func() { baseDir = prev })

	t.Setenv("CARELOG_CONFIG_DIR", t.TempDir())
	t.Setenv("CARELOG_SYNC_URL", sqliteScheme+authorityPath)
	if autoSync {
		t.Setenv("CARELOG_AUTO_SYNC", "true")
	} else {
		t.Setenv("CARELOG_AUTO_SYNC", "false")
	}
	t.Setenv("CARELOG_SYNC_RETRY_DELAY", "0s")
	return dataDir, authorityPath
}

func initData(t *testing.T, dir string) {
	t.Helper()
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := database.SeedCaregivers("device-test"); err != nil {
		t.Fatalf("SeedCaregivers: %v", err)
	}
	database.Close()
}

func TestOpenAuthoritySQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.db")
	authority, closeFn, err := openAuthority(sqliteScheme + path)
	if err != nil {
		t.Fatalf("openAuthority: %v", err)
	}
	defer closeFn()
	if _, ok := authority.(*serverdb.ServerDB); !ok {
		t.Fatalf("authority = %T, want *serverdb.ServerDB", authority)
	}
}

func TestOpenAuthorityHTTP(t *testing.T) {
	t.Setenv("CARELOG_CONFIG_DIR", t.TempDir())
	t.Setenv("CARELOG_SYNC_ADMIN_TOKEN", "secret")

	authority, closeFn, err := openAuthority("https://sync.example.com/")
	if err != nil {
		t.Fatalf("openAuthority: %v", err)
	}
	if closeFn != nil {
		t.Fatal("http authority should not need closing")
	}
	client, ok := authority.(*syncclient.Client)
	if !ok {
		t.Fatalf("authority = %T, want *syncclient.Client", authority)
	}
	if client.DeviceID == "" || client.AdminToken != "secret" {
		t.Fatalf("client = %+v", client)
	}
}

func TestOpenAuthorityRejectsUnknownScheme(t *testing.T) {
	_, _, err := openAuthority("ftp://example.com")
	if err == nil || !strings.Contains(err.Error(), "unsupported sync url") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAppRequiresInit(t *testing.T) {
	useTempEnv(t, false)
	_, err := openApp()
	if err == nil || !strings.Contains(err.Error(), "carelog init") {
		t.Fatalf("err = %v, want init hint", err)
	}
}

func TestSubmitAutoSyncsToAuthority(t *testing.T) {
	dir, authorityPath := useTempEnv(t, true)
	initData(t, dir)

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()

	notes := "left side"
	start := time.Now()
	typ := models.EventFeed
	op, err := a.submit(context.Background(), clsync.NewCreate("", &models.Patch{Type: &typ, Start: &start, Notes: &notes}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if op.ActorID == "" {
		t.Fatal("submit should stamp the current caregiver")
	}

	if n, _ := a.db.PendingCount(); n != 0 {
		t.Fatalf("pending = %d after auto-sync", n)
	}
	if last, _ := a.db.LastSyncAt(); last == nil {
		t.Fatal("last sync time not persisted")
	}

	store, err := serverdb.Open(authorityPath)
	if err != nil {
		t.Fatalf("open authority: %v", err)
	}
	defer store.Close()
	ev, err := store.Event(context.Background(), op.EventID)
	if err != nil || ev == nil {
		t.Fatalf("authority event = %v, %v", ev, err)
	}
	if ev.Notes != "left side" || ev.Version != 1 {
		t.Fatalf("authority event = %+v", ev)
	}
}

func TestSubmitQueuesWhenOffline(t *testing.T) {
	dir, _ := useTempEnv(t, true)
	initData(t, dir)

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	if err := a.db.SetOffline(true); err != nil {
		t.Fatal(err)
	}
	a.orch.SetOffline(true)

	typ := models.EventDiaper
	start := time.Now()
	op, err := a.submit(context.Background(), clsync.NewCreate("", &models.Patch{Type: &typ, Start: &start}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n, _ := a.db.PendingCount(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
	if !a.pendingEvents()[op.EventID] {
		t.Fatal("event should be marked pending")
	}
	ev, _ := a.db.GetEvent(op.EventID)
	if ev == nil {
		t.Fatal("optimistic event missing from local cache")
	}

	a.orch.SetOffline(false)
	res, err := a.sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(res.Applied))
	}
	if n, _ := a.db.PendingCount(); n != 0 {
		t.Fatalf("pending = %d after sync", n)
	}
}

func TestSubmitWithoutCaregiver(t *testing.T) {
	dir, _ := useTempEnv(t, false)
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatal(err)
	}
	database.Close()

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()

	typ := models.EventSleep
	_, err = a.submit(context.Background(), clsync.NewCreate("", &models.Patch{Type: &typ}))
	if err == nil || !strings.Contains(err.Error(), "caregiver use") {
		t.Fatalf("err = %v, want caregiver hint", err)
	}
}
