package cmd

import (
	"errors"
	"fmt"

	"github.com/marcus/carelog/internal/output"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/spf13/cobra"
)

var offlineCmd = &cobra.Command{
	Use:     "offline",
	Short:   "Stop contacting the authority; changes queue locally",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if err := a.db.SetOffline(true); err != nil {
			output.Error("%v", err)
			return err
		}
		a.orch.SetOffline(true)
		output.Success("Offline. New entries will queue until you run: carelog online")
		return nil
	},
}

var onlineCmd = &cobra.Command{
	Use:     "online",
	Short:   "Resume contacting the authority and flush queued changes",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if err := a.db.SetOffline(false); err != nil {
			output.Error("%v", err)
			return err
		}
		a.orch.SetOffline(false)
		output.Success("Online")

		if skip, _ := cmd.Flags().GetBool("no-sync"); skip {
			return nil
		}
		res, err := a.sync(cmd.Context())
		if err != nil {
			if errors.Is(err, clsync.ErrSyncInProgress) {
				return nil
			}
			output.Warning("sync failed, changes stay queued: %v", err)
			return nil
		}
		fmt.Println(output.FormatSyncResult(res))
		return nil
	},
}

func init() {
	onlineCmd.Flags().Bool("no-sync", false, "do not sync right away")
	rootCmd.AddCommand(offlineCmd, onlineCmd)
}
