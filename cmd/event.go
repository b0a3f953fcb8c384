package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/marcus/carelog/internal/dateparse"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	Aliases: []string{"ev"},
	Short:   "Create, edit and inspect care events",
	GroupID: "core",
}

var createType models.EventType

var eventCreateCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"add", "new"},
	Short:   "Log a new event",
	Example: `  carelog event create -t feed --start -20m --duration 15 --notes "left side"
  carelog event create -t sleep --start 13:05 --end 14:40`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd.Flags(), nil)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		typ := createType
		patch.Type = &typ
		if patch.Start == nil {
			now := time.Now()
			patch.Start = &now
		}
		return createEvent(cmd, patch)
	},
}

// createEvent submits a create operation for patch and reports the result.
func createEvent(cmd *cobra.Command, patch *models.Patch) error {
	a, err := openApp()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	defer a.Close()

	op, err := a.submit(cmd.Context(), clsync.NewCreate("", patch))
	if err != nil {
		output.Error("%v", err)
		return err
	}
	ev, err := a.db.GetEvent(op.EventID)
	if err != nil || ev == nil {
		output.Success("CREATED %s", output.ShortID(op.EventID))
		return err
	}
	output.Success("CREATED %s", output.FormatEventShort(ev, a.caregiverNames(), a.pendingEvents()[ev.ID]))
	return nil
}

var eventUpdateCmd = &cobra.Command{
	Use:     "update <id>",
	Aliases: []string{"edit"},
	Short:   "Edit an event",
	Long:    `Edits the given fields of an event. Only flags that are passed are changed.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		ev, err := a.findEvent(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if ev.Deleted {
			output.Error("event %s is deleted", output.ShortID(ev.ID))
			return fmt.Errorf("event deleted")
		}

		patch, err := patchFromFlags(cmd.Flags(), ev)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if cmd.Flags().Changed("type") {
			t, err := parseEventType(cmd.Flags())
			if err != nil {
				output.Error("%v", err)
				return err
			}
			patch.Type = &t
		}
		if len(patch.Fields()) == 0 {
			output.Error("nothing to update (pass --notes, --type, --start, --end or --duration)")
			return fmt.Errorf("empty update")
		}

		if _, err := a.submit(cmd.Context(), clsync.NewUpdate("", *ev, patch)); err != nil {
			output.Error("%v", err)
			return err
		}
		updated, _ := a.db.GetEvent(ev.ID)
		if updated == nil {
			updated = ev
		}
		output.Success("UPDATED %s", output.FormatEventShort(updated, a.caregiverNames(), a.pendingEvents()[ev.ID]))
		return nil
	},
}

var eventDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an event",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		ev, err := a.findEvent(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if ev.Deleted {
			output.Warning("event %s is already deleted", output.ShortID(ev.ID))
			return nil
		}
		if _, err := a.submit(cmd.Context(), clsync.NewDelete("", *ev)); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("DELETED %s", output.ShortID(ev.ID))
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List events, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		events, err := a.db.Events()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		f := eventFilter{}
		f.all, _ = cmd.Flags().GetBool("all")
		f.today, _ = cmd.Flags().GetBool("today")
		if cmd.Flags().Changed("type") {
			t, err := parseEventType(cmd.Flags())
			if err != nil {
				output.Error("%v", err)
				return err
			}
			f.typ = t
		}
		if name, _ := cmd.Flags().GetString("caregiver"); name != "" {
			c, err := a.db.FindCaregiver(name)
			if err != nil {
				return err
			}
			if c == nil {
				output.Error("no caregiver named %q", name)
				return fmt.Errorf("caregiver not found")
			}
			f.caregiverID = c.ID
		}
		limit, _ := cmd.Flags().GetInt("limit")

		events = f.apply(events, time.Now())
		if limit > 0 && len(events) > limit {
			events = events[:limit]
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			if events == nil {
				events = []models.Event{}
			}
			return output.JSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No events")
			return nil
		}
		names := a.caregiverNames()
		pending := a.pendingEvents()
		for i := range events {
			fmt.Println(output.FormatEventShort(&events[i], names, pending[events[i].ID]))
		}
		return nil
	},
}

var eventShowCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"info"},
	Short:   "Show an event and its conflict history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		ev, err := a.findEvent(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		conflicts, err := a.db.ConflictsForEvent(ev.ID)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{"event": ev, "conflicts": conflicts})
		}

		names := a.caregiverNames()
		fmt.Print(output.FormatEventLong(ev, names, nil, a.pendingEvents()[ev.ID]))
		if len(conflicts) > 0 {
			fmt.Println()
			fmt.Println(output.RenderConflictHistory(ev.ID, conflicts, names))
		}
		return nil
	},
}

// eventFilter narrows an event list for display.
type eventFilter struct {
	all         bool
	today       bool
	typ         models.EventType
	caregiverID string
}

// apply filters events and orders them newest start first.
func (f eventFilter) apply(events []models.Event, now time.Time) []models.Event {
	if !f.all {
		events = clsync.Visible(events)
	}
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var out []models.Event
	for _, ev := range events {
		if f.today && ev.Start.Before(midnight) {
			continue
		}
		if f.typ != "" && ev.Type != f.typ {
			continue
		}
		if f.caregiverID != "" && ev.CaregiverID != f.caregiverID {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.After(out[j].Start)
	})
	return out
}

// parseEventType reads the --type flag of commands that treat it as optional.
func parseEventType(fs *pflag.FlagSet) (models.EventType, error) {
	raw, _ := fs.GetString("type")
	var t models.EventType
	if err := newEventTypeValue("", &t).Set(raw); err != nil {
		return "", fmt.Errorf("invalid --type %q: %w", raw, err)
	}
	return t, nil
}

// patchFromFlags builds a patch from --start, --end, --duration and --notes.
// ev, when set, supplies the start a bare --duration is measured from.
func patchFromFlags(fs *pflag.FlagSet, ev *models.Event) (*models.Patch, error) {
	p := &models.Patch{}
	now := time.Now()

	if fs.Changed("start") {
		raw, _ := fs.GetString("start")
		t, err := dateparse.ParseTimeFrom(raw, now)
		if err != nil {
			return nil, fmt.Errorf("--start: %w", err)
		}
		p.Start = &t
	}
	if fs.Changed("end") && fs.Changed("duration") {
		return nil, fmt.Errorf("use either --end or --duration, not both")
	}
	if fs.Changed("end") {
		raw, _ := fs.GetString("end")
		t, err := dateparse.ParseTimeFrom(raw, now)
		if err != nil {
			return nil, fmt.Errorf("--end: %w", err)
		}
		p.End = &t
	}
	if fs.Changed("duration") {
		raw, _ := fs.GetString("duration")
		d, err := dateparse.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("--duration: %w", err)
		}
		start := now
		switch {
		case p.Start != nil:
			start = *p.Start
		case ev != nil:
			start = ev.Start
		}
		end := start.Add(d)
		p.End = &end
	}
	if fs.Changed("notes") {
		notes, _ := fs.GetString("notes")
		p.Notes = &notes
	}

	start := now
	switch {
	case p.Start != nil:
		start = *p.Start
	case ev != nil:
		start = ev.Start
	}
	if p.End != nil && p.End.Before(start) {
		return nil, fmt.Errorf("end is before start")
	}
	return p, nil
}

// addTimeFlags registers the flags patchFromFlags reads.
func addTimeFlags(fs *pflag.FlagSet) {
	fs.String("start", "now", "start time (now, -15m, 2h ago, 14:30, 2006-01-02 15:04)")
	fs.String("end", "", "end time, same formats as --start")
	fs.String("duration", "", "length, e.g. 20 (minutes) or 1h15m")
	fs.String("notes", "", "free-text notes")
}

func init() {
	addEventTypeFlag(eventCreateCmd.Flags(), models.EventFeed, &createType)
	addTimeFlags(eventCreateCmd.Flags())

	addTimeFlags(eventUpdateCmd.Flags())
	eventUpdateCmd.Flags().StringP("type", "t", "", "event type ("+eventTypeNames()+")")

	eventListCmd.Flags().StringP("type", "t", "", "only events of this type")
	eventListCmd.Flags().StringP("caregiver", "c", "", "only events logged for this caregiver")
	eventListCmd.Flags().Bool("today", false, "only events that started today")
	eventListCmd.Flags().Bool("all", false, "include deleted events")
	eventListCmd.Flags().IntP("limit", "n", 0, "show at most N events")
	eventListCmd.Flags().Bool("json", false, "output as JSON")

	eventShowCmd.Flags().Bool("json", false, "output as JSON")

	eventCmd.AddCommand(eventCreateCmd, eventUpdateCmd, eventDeleteCmd, eventListCmd, eventShowCmd)
	rootCmd.AddCommand(eventCmd)
}
