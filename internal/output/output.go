// Package output provides styled terminal output helpers (success, error,
// warning, event and conflict formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/carelog/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	typeStyles   = map[models.EventType]lipgloss.Style{
		models.EventFeed:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.EventDiaper: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.EventSleep:  lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncError     = "sync_error"
	ErrCodeOffline       = "offline"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// ShortID trims a uuid to its first eight characters for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatType formats an event type with its color.
func FormatType(t models.EventType) string {
	style, ok := typeStyles[t]
	if !ok {
		return fmt.Sprintf("[%s]", t)
	}
	return style.Render(fmt.Sprintf("[%s]", t))
}

// FormatSpan renders an event's start, and end plus length when it has one.
func FormatSpan(ev *models.Event) string {
	start := ev.Start.Local()
	if ev.End == nil {
		return start.Format("Jan 02 15:04")
	}
	end := ev.End.Local()
	layout := "15:04"
	if end.YearDay() != start.YearDay() || end.Year() != start.Year() {
		layout = "Jan 02 15:04"
	}
	return fmt.Sprintf("%s-%s (%s)", start.Format("Jan 02 15:04"), end.Format(layout), FormatDuration(ev.End.Sub(ev.Start)))
}

// FormatDuration renders whole minutes as "45m" or "1h20m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	mins := int(d.Round(time.Minute).Minutes())
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	if mins%60 == 0 {
		return fmt.Sprintf("%dh", mins/60)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}

// FormatEventShort formats an event on one line. names maps caregiver ids
// to display names; unknown ids are shown shortened.
func FormatEventShort(ev *models.Event, names map[string]string, pending bool) string {
	parts := []string{
		titleStyle.Render(ShortID(ev.ID)),
		FormatType(ev.Type),
		FormatSpan(ev),
		caregiverName(ev.CaregiverID, names),
	}
	if ev.Notes != "" {
		parts = append(parts, ev.Notes)
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("v%d", ev.Version)))
	if pending {
		parts = append(parts, pendingStyle.Render("[pending]"))
	}
	if ev.Deleted {
		parts = append(parts, errorStyle.Render("[deleted]"))
	}
	return strings.Join(parts, "  ")
}

// FormatEventLong formats an event with its metadata and conflict history.
func FormatEventLong(ev *models.Event, names map[string]string, conflicts []models.ConflictRecord, pending bool) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", ev.ID, FormatType(ev.Type))))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "When: %s\n", FormatSpan(ev))
	fmt.Fprintf(&sb, "Caregiver: %s\n", caregiverName(ev.CaregiverID, names))
	if ev.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", ev.Notes)
	}
	fmt.Fprintf(&sb, "Version: %d | Modified %s by %s\n",
		ev.Version, FormatTimeAgo(ev.UpdatedAt), caregiverName(ev.LastModifiedBy, names))
	if pending {
		sb.WriteString(pendingStyle.Render("Local changes not yet synced"))
		sb.WriteString("\n")
	}
	if ev.Deleted {
		sb.WriteString(errorStyle.Render("DELETED"))
		sb.WriteString("\n")
	}

	if len(conflicts) > 0 {
		sb.WriteString(SectionHeader("Conflicts"))
		for _, c := range conflicts {
			sb.WriteString("  ")
			sb.WriteString(FormatConflict(c, names))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatConflict formats one conflict record on a single line.
func FormatConflict(c models.ConflictRecord, names map[string]string) string {
	winner := successStyle.Render("kept")
	if c.Winner == models.WinnerRemote {
		winner = warningStyle.Render("lost")
	}
	return fmt.Sprintf("[%s] %s %s by %s: %s (%s) %s",
		c.ResolvedAt.Local().Format("Jan 02 15:04"),
		ShortID(c.EventID),
		strings.Join(c.Fields, ","),
		caregiverName(c.ActorID, names),
		winner,
		c.Reason,
		subtleStyle.Render(ShortID(c.OperationID)),
	)
}

// ConflictMarkdown renders a conflict history as a markdown table for
// RenderMarkdown.
func ConflictMarkdown(eventID string, conflicts []models.ConflictRecord, names map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Conflict history for `%s`\n\n", ShortID(eventID))
	if len(conflicts) == 0 {
		sb.WriteString("_No conflicts recorded._\n")
		return sb.String()
	}
	sb.WriteString("| Resolved | Caregiver | Fields | Winner | Reason |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, c := range conflicts {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			c.ResolvedAt.Local().Format("2006-01-02 15:04"),
			caregiverName(c.ActorID, names),
			strings.Join(c.Fields, ", "),
			c.Winner,
			strings.ReplaceAll(c.Reason, "_", " "),
		)
	}
	return sb.String()
}

// FormatSyncResult summarises the outcome of a sync pass.
func FormatSyncResult(res models.SyncResult) string {
	msg := fmt.Sprintf("Synced: %d applied, %d conflicts", len(res.Applied), len(res.Conflicts))
	if len(res.Duplicates) > 0 {
		msg += fmt.Sprintf(", %d already applied", len(res.Duplicates))
	}
	return msg + fmt.Sprintf(" (server v%d)", res.ServerVersion)
}

func caregiverName(id string, names map[string]string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	if id == "" {
		return "unknown"
	}
	return ShortID(id)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nCONFLICTS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
