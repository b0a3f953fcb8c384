package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var pendingCmd = &cobra.Command{
	Use:     "pending",
	Aliases: []string{"queue"},
	Short:   "Show operations waiting to be synced",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		ops, err := a.db.PendingOperations()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			if ops == nil {
				ops = []models.Operation{}
			}
			return output.JSON(ops)
		}
		if len(ops) == 0 {
			fmt.Println("Nothing queued")
			return nil
		}
		names := a.caregiverNames()
		for _, op := range ops {
			actor := names[op.ActorID]
			if actor == "" {
				actor = output.ShortID(op.ActorID)
			}
			fmt.Printf("%s  %-6s %s  by %s  %s\n",
				output.ShortID(op.ID), op.Kind, output.ShortID(op.EventID), actor,
				output.FormatTimeAgo(op.Timestamp))
		}
		fmt.Printf("\n%d operation(s) pending\n", len(ops))
		return nil
	},
}

var pendingClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued operation without sending it",
	Long: `Drops the queue. Local views keep the optimistic changes until the next
sync replaces them with the authority's state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		n, err := a.db.PendingCount()
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("Nothing queued")
			return nil
		}

		force, _ := cmd.Flags().GetBool("force")
		ok, err := confirm(force, fmt.Sprintf("Discard %d queued operation(s)?", n))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled")
			return nil
		}
		if err := a.orch.ClearPendingOperations(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Cleared %d queued operation(s)", n)
		return nil
	},
}

// confirm asks a yes/no question. Without a terminal it refuses unless force.
func confirm(force bool, title string) (bool, error) {
	if force {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing without --force when not running interactively")
	}
	var ok bool
	if err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run(); err != nil {
		return false, err
	}
	return ok, nil
}

func init() {
	pendingCmd.Flags().Bool("json", false, "output as JSON")
	pendingClearCmd.Flags().BoolP("force", "f", false, "skip confirmation")
	pendingCmd.AddCommand(pendingClearCmd)
	rootCmd.AddCommand(pendingCmd)
}
