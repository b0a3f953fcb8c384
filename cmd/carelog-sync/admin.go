package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/marcus/carelog/internal/api"
	"github.com/marcus/carelog/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		runAdminStatus(args[1:])
	case "conflicts":
		runAdminConflicts(args[1:])
	case "devices":
		runAdminDevices(args[1:])
	case "reset":
		runAdminReset(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: carelog-sync admin <command> [flags]

Commands:
  status      Show the authority version and event counts
  conflicts   Print the conflict audit as JSON
  devices     List device sync cursors
  reset       Wipe every event, tombstone and the version counter`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = api.LoadConfig().DBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func dbFlag(fs *flag.FlagSet) *string {
	return fs.String("db", "", "path to authority.db (default: from CARELOG_SYNC_DB_PATH or ./data/authority.db)")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func runAdminStatus(args []string) {
	fs := flag.NewFlagSet("admin status", flag.ExitOnError)
	dbPath := dbFlag(fs)
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	state, err := store.State(context.Background())
	if err != nil {
		fail("read state: %v", err)
	}
	fmt.Printf("version:    %d\n", state.Version)
	fmt.Printf("events:     %d\n", len(state.Events))
	fmt.Printf("tombstones: %d\n", len(state.Tombstones))
	fmt.Printf("schema:     %d\n", store.SchemaVersion())
}

func runAdminConflicts(args []string) {
	fs := flag.NewFlagSet("admin conflicts", flag.ExitOnError)
	dbPath := dbFlag(fs)
	eventID := fs.String("event", "", "only conflicts for this event id")
	actorID := fs.String("actor", "", "only conflicts raised by this actor id")
	limit := fs.Int("limit", 50, "maximum records")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	records, err := store.QueryConflicts(context.Background(), serverdb.ConflictFilter{
		EventID: *eventID,
		ActorID: *actorID,
		Limit:   *limit,
	})
	if err != nil {
		fail("query conflicts: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fail("encode: %v", err)
	}
}

func runAdminDevices(args []string) {
	fs := flag.NewFlagSet("admin devices", flag.ExitOnError)
	dbPath := dbFlag(fs)
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	cursors, err := store.ListDeviceCursors(context.Background())
	if err != nil {
		fail("list devices: %v", err)
	}
	for _, c := range cursors {
		last := "never"
		if c.LastSyncAt != nil {
			last = c.LastSyncAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s\tv%d\t%s\n", c.DeviceID, c.LastVersion, last)
	}
}

func runAdminReset(args []string) {
	fs := flag.NewFlagSet("admin reset", flag.ExitOnError)
	dbPath := dbFlag(fs)
	yes := fs.Bool("yes", false, "confirm the wipe")
	fs.Parse(args)

	if !*yes {
		fail("refusing to reset without --yes")
	}
	store := openDB(*dbPath)
	defer store.Close()

	if err := store.Reset(context.Background()); err != nil {
		fail("reset: %v", err)
	}
	fmt.Println("authority reset")
}
