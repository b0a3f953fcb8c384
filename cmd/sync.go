package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/marcus/carelog/internal/serverdb"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/marcus/carelog/internal/syncclient"
	"github.com/marcus/carelog/internal/syncconfig"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes and reconcile with the authority",
	Long: `Pushes queued operations in batches, retrying failed attempts with
exponential backoff, then replaces the local cache with the authoritative
state. With nothing queued, only pulls when the authority has moved on.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")
		pushOnly, _ := cmd.Flags().GetBool("push")

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if statusOnly {
			return runSyncStatus(a)
		}

		pending, err := a.db.PendingCount()
		if err != nil {
			return err
		}

		if pending == 0 && !pushOnly {
			merged, err := a.orch.Pull(cmd.Context())
			if err != nil {
				return reportSyncError(err)
			}
			a.persistSyncTime()
			v, _ := a.db.ServerVersion()
			if merged {
				output.Success("Pulled latest events (server v%d)", v)
			} else {
				fmt.Printf("Up to date (server v%d)\n", v)
			}
			return nil
		}

		res, err := a.sync(cmd.Context())
		if err != nil {
			if len(res.Applied)+len(res.Conflicts)+len(res.Duplicates) > 0 {
				output.Warning("partial progress: %s", output.FormatSyncResult(res))
			}
			return reportSyncError(err)
		}
		output.Success("%s", output.FormatSyncResult(res))
		names := a.caregiverNames()
		for _, c := range res.Conflicts {
			fmt.Println("  " + output.FormatConflict(c, names))
		}
		return nil
	},
}

func reportSyncError(err error) error {
	switch {
	case errors.Is(err, clsync.ErrOffline):
		output.Warning("offline; changes stay queued (run: carelog online)")
	case errors.Is(err, clsync.ErrSyncInProgress):
		output.Warning("a sync is already running")
	case errors.Is(err, syncclient.ErrRateLimited):
		output.Error("the sync server is rate limiting this device; try again shortly")
	case errors.Is(err, clsync.ErrRejected):
		output.Error("the sync server rejected the request, changes stay queued: %v", err)
	default:
		output.Error("sync: %v", err)
	}
	return err
}

func runSyncStatus(a *app) error {
	st, err := a.orch.Status()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	last, _ := a.db.LastSyncAt()

	mode := "online"
	if st.Offline {
		mode = "offline"
	}
	fmt.Printf("Server:       %s\n", syncconfig.GetServerURL())
	fmt.Printf("Mode:         %s\n", mode)
	fmt.Printf("Pending:      %d operations\n", st.Pending)
	fmt.Printf("Server ver:   %d\n", st.ServerVersion)
	if last != nil {
		fmt.Printf("Last sync:    %s (%s)\n", last.Local().Format(time.RFC3339), output.FormatTimeAgo(*last))
	} else {
		fmt.Println("Last sync:    never")
	}
	fmt.Printf("Auto-sync:    %v\n", syncconfig.GetAutoSyncEnabled())
	return nil
}

// conflictQuerier is implemented by authorities that keep a conflict audit.
type conflictQuerier interface {
	Conflicts(ctx context.Context, eventID, actorID string, limit int) ([]models.ConflictRecord, error)
}

// serverConflicts adapts a directly opened authority database.
type serverConflicts struct{ store *serverdb.ServerDB }

func (s serverConflicts) Conflicts(ctx context.Context, eventID, actorID string, limit int) ([]models.ConflictRecord, error) {
	return s.store.QueryConflicts(ctx, serverdb.ConflictFilter{EventID: eventID, ActorID: actorID, Limit: limit})
}

func conflictSource(authority clsync.Authority) (conflictQuerier, bool) {
	switch v := authority.(type) {
	case *syncclient.Client:
		return v, true
	case *serverdb.ServerDB:
		return serverConflicts{store: v}, true
	}
	return nil, false
}

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List recent conflict records",
	Long: `Lists contested and rejected operations, newest first. By default reads
this device's conflict log; --server queries the authority's audit of every
device.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		eventArg, _ := cmd.Flags().GetString("event")
		fromServer, _ := cmd.Flags().GetBool("server")
		jsonOut, _ := cmd.Flags().GetBool("json")

		eventID := ""
		if eventArg != "" {
			ev, err := a.findEvent(eventArg)
			if err != nil {
				// The event may only exist on the authority.
				eventID = eventArg
			} else {
				eventID = ev.ID
			}
		}

		var records []models.ConflictRecord
		switch {
		case fromServer:
			src, ok := conflictSource(a.authority)
			if !ok {
				return fmt.Errorf("authority does not expose a conflict log")
			}
			records, err = src.Conflicts(cmd.Context(), eventID, "", limit)
		case eventID != "":
			records, err = a.db.ConflictsForEvent(eventID)
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
		default:
			var since *time.Time
			if s, _ := cmd.Flags().GetString("since"); s != "" {
				t, perr := parseSince(s)
				if perr != nil {
					output.Error("%v", perr)
					return perr
				}
				since = &t
			}
			records, err = a.db.RecentConflicts(limit, since)
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut {
			if records == nil {
				records = []models.ConflictRecord{}
			}
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No conflicts")
			return nil
		}
		names := a.caregiverNames()
		for _, c := range records {
			fmt.Println(output.FormatConflict(c, names))
		}
		return nil
	},
}

// parseSince accepts a duration ("24h") meaning that long ago.
func parseSince(s string) (time.Time, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q (use e.g. 24h)", s)
	}
	return time.Now().Add(-d), nil
}

var syncDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices the authority has seen and their sync positions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		type row struct {
			id      string
			version int64
			last    *time.Time
		}
		var rows []row
		switch v := a.authority.(type) {
		case *syncclient.Client:
			list, err := v.Devices(cmd.Context())
			if err != nil {
				return reportSyncError(err)
			}
			for _, d := range list {
				rows = append(rows, row{d.DeviceID, d.LastVersion, d.LastSyncAt})
			}
		case *serverdb.ServerDB:
			list, err := v.ListDeviceCursors(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range list {
				rows = append(rows, row{d.DeviceID, d.LastVersion, d.LastSyncAt})
			}
		default:
			return fmt.Errorf("authority does not track devices")
		}

		self, _ := syncconfig.GetDeviceID()
		for _, r := range rows {
			last := "never"
			if r.last != nil {
				last = output.FormatTimeAgo(*r.last)
			}
			marker := ""
			if r.id == self {
				marker = " (this device)"
			}
			fmt.Printf("%s  v%d  %s%s\n", output.ShortID(r.id), r.version, last, marker)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("status", false, "show sync status without syncing")
	syncCmd.Flags().Bool("push", false, "always run a full push pass, even with nothing queued")

	syncConflictsCmd.Flags().IntP("limit", "n", 20, "show at most N records")
	syncConflictsCmd.Flags().StringP("event", "e", "", "only conflicts for this event id or prefix")
	syncConflictsCmd.Flags().String("since", "", "only conflicts resolved within this duration, e.g. 24h")
	syncConflictsCmd.Flags().Bool("server", false, "query the authority's audit log")
	syncConflictsCmd.Flags().Bool("json", false, "output as JSON")

	syncCmd.AddCommand(syncConflictsCmd, syncDevicesCmd)
	rootCmd.AddCommand(syncCmd)
}
