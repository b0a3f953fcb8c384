package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	clsync "github.com/marcus/carelog/internal/sync"
	"github.com/spf13/cobra"
)

// typeSummary aggregates one event category over a window.
type typeSummary struct {
	Type  models.EventType `json:"type"`
	Count int              `json:"count"`
	Total time.Duration    `json:"total_ns"`
	Last  *models.Event    `json:"last,omitempty"`
}

// summarize counts visible events per type that started at or after since,
// and remembers the latest event of each type regardless of window.
func summarize(events []models.Event, since time.Time) []typeSummary {
	byType := make(map[models.EventType]*typeSummary, len(models.EventTypes))
	out := make([]typeSummary, len(models.EventTypes))
	for i, t := range models.EventTypes {
		out[i].Type = t
		byType[t] = &out[i]
	}
	for _, ev := range clsync.Visible(events) {
		s, ok := byType[ev.Type]
		if !ok {
			continue
		}
		if s.Last == nil || ev.Start.After(s.Last.Start) {
			e := ev
			s.Last = &e
		}
		if ev.Start.Before(since) {
			continue
		}
		s.Count++
		if ev.End != nil {
			s.Total += ev.End.Sub(ev.Start)
		}
	}
	return out
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"today"},
	Short:   "Summarize today's care and the sync state",
	GroupID: "core",
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
		now := time.Now()
		y, m, d := now.Date()
		summary := summarize(events, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))

		st, err := a.orch.Status()
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{
				"today":          summary,
				"pending":        st.Pending,
				"server_version": st.ServerVersion,
				"offline":        st.Offline,
			})
		}

		if c, _ := a.db.CurrentCaregiver(); c != nil {
			fmt.Printf("Logging as %s\n", c.Name)
		}
		fmt.Print(output.SectionHeader("today"))
		for _, s := range summary {
			line := fmt.Sprintf("%s %d", output.FormatType(s.Type), s.Count)
			if s.Total > 0 {
				line += "  (" + output.FormatDuration(s.Total) + ")"
			}
			if s.Last != nil {
				line += "  last " + output.FormatTimeAgo(s.Last.Start)
			}
			fmt.Println(line)
		}

		mode := "online"
		if st.Offline {
			mode = "offline"
		}
		fmt.Print(output.SectionHeader("sync"))
		fmt.Printf("%s, %d pending, server v%d\n", mode, st.Pending, st.ServerVersion)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}
