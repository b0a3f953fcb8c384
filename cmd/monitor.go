package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/marcus/carelog/pkg/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of events and sync state",
	Long: `Launch a live-updating TUI showing the visible events, the pending queue,
the authoritative version, the network mode and the last sync result.

Key bindings:
  s    Sync now
  o    Toggle offline mode
  r    Force refresh
  ?    Toggle help
  q    Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		model := monitor.NewModel(a.db, a.orch, monitor.Config{
			Interval: interval,
			Version:  version,
			Options:  a.opts,
			AfterSync: func(models.SyncResult, error) {
				a.persistSyncTime()
			},
		})

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
}
