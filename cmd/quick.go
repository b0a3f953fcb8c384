package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/spf13/cobra"
)

// quickDefaults holds the notes each shortcut logs when --notes is absent.
var quickDefaults = map[models.EventType]string{
	models.EventFeed:   "Feeding session",
	models.EventDiaper: "Diaper change",
	models.EventSleep:  "Sleep time",
}

func newQuickCmd(typ models.EventType, short string, aliases ...string) *cobra.Command {
	c := &cobra.Command{
		Use:     string(typ),
		Aliases: aliases,
		Short:   short,
		Example: fmt.Sprintf("  carelog %s\n  carelog %s --start -30m --duration 20 --notes \"...\"", typ, typ),
		GroupID: "shortcuts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromFlags(cmd.Flags(), nil)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			t := typ
			patch.Type = &t
			if patch.Start == nil {
				now := time.Now()
				patch.Start = &now
			}
			if patch.Notes == nil {
				notes := quickDefaults[typ]
				patch.Notes = &notes
			}
			return createEvent(cmd, patch)
		},
	}
	addTimeFlags(c.Flags())
	return c
}

func init() {
	rootCmd.AddCommand(
		newQuickCmd(models.EventFeed, "Log a feed starting now", "f"),
		newQuickCmd(models.EventDiaper, "Log a diaper change now", "d"),
		newQuickCmd(models.EventSleep, "Log a sleep starting now", "s"),
	)
}
