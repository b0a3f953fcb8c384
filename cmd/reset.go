package cmd

import (
	"github.com/marcus/carelog/internal/output"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe local data, and optionally the authority",
	Long: `Clears the local event cache, queue and conflict log. Caregivers and the
current selection are kept. With --server, also wipes the authority's events,
tombstones and version (requires CARELOG_SYNC_ADMIN_TOKEN for remote servers).`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		server, _ := cmd.Flags().GetBool("server")
		force, _ := cmd.Flags().GetBool("force")
		prompt := "Wipe local events, queue and conflicts?"
		if server {
			prompt = "Wipe local data AND every event on the sync server?"
		}
		ok, err := confirm(force, prompt)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if !ok {
			return nil
		}

		if server {
			if err := a.authority.Reset(cmd.Context()); err != nil {
				output.Error("server reset: %v", err)
				return err
			}
			output.Success("Server reset")
		}
		if err := a.db.Reset(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Local data reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("server", false, "also reset the authority")
	resetCmd.Flags().BoolP("force", "f", false, "skip confirmation")
	rootCmd.AddCommand(resetCmd)
}
