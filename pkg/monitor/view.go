package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// View implements tea.Model
func (m Model) View() string {
	width, height := m.Width, m.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	header := m.renderHeader(width)
	footer := m.renderFooter(width)
	syncPanel := m.renderSyncPanel(width)

	used := lipgloss.Height(header) + lipgloss.Height(footer) + lipgloss.Height(syncPanel)
	rows := height - used - 3 // event panel border and title
	if rows < 3 {
		rows = 3
	}
	events := m.renderEvents(width, rows)

	return lipgloss.JoinVertical(lipgloss.Left, header, events, syncPanel, footer)
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("carelog monitor")
	if m.cfg.Version != "" {
		title += subtleStyle.Render(" " + m.cfg.Version)
	}

	mode := onlineBadge.Render("online")
	if m.Status.Offline {
		mode = offlineBadge.Render("offline")
	}
	parts := []string{
		title,
		mode,
		fmt.Sprintf("server v%d", m.Status.ServerVersion),
		pendingBadge.Render(fmt.Sprintf("%d pending", m.Status.Pending)),
	}
	if m.Syncing {
		parts = append(parts, m.spinner.View()+" syncing")
	}
	return ansi.Truncate(strings.Join(parts, subtleStyle.Render("  |  ")), width, "…")
}

func (m Model) renderEvents(width, rows int) string {
	inner := width - 4
	var lines []string
	if m.LoadErr != nil {
		lines = append(lines, errorText.Render(ansi.Truncate("load: "+m.LoadErr.Error(), inner, "…")))
	}
	if len(m.Events) == 0 && m.LoadErr == nil {
		lines = append(lines, subtleStyle.Render("No events yet"))
	}
	for i := range m.Events {
		if len(lines) >= rows {
			break
		}
		lines = append(lines, ansi.Truncate(m.formatRow(&m.Events[i]), inner, "…"))
	}
	title := panelTitleStyle.Render(fmt.Sprintf("EVENTS (%d)", len(m.Events)))
	body := strings.Join(lines, "\n")
	return panelStyle.Width(width - 2).Render(title + "\n" + body)
}

func (m Model) formatRow(ev *models.Event) string {
	marker := " "
	if m.Pending[ev.ID] {
		marker = pendingBadge.Render("*")
	}
	typ := string(ev.Type)
	if st, ok := typeStyles[ev.Type]; ok {
		typ = st.Render(fmt.Sprintf("%-6s", ev.Type))
	}
	who := m.Names[ev.CaregiverID]
	if who == "" {
		who = output.ShortID(ev.CaregiverID)
	}
	row := fmt.Sprintf("%s %s %s %s  %s  v%d",
		marker,
		subtleStyle.Render(output.ShortID(ev.ID)),
		typ,
		timestampStyle.Render(output.FormatSpan(ev)),
		who,
		ev.Version,
	)
	if ev.Notes != "" {
		row += subtleStyle.Render("  " + strings.ReplaceAll(ev.Notes, "\n", " "))
	}
	return row
}

func (m Model) renderSyncPanel(width int) string {
	inner := width - 4
	var lines []string
	switch {
	case m.LastResult == nil && m.LastErr == nil:
		lines = append(lines, subtleStyle.Render("No sync yet this session (press s)"))
	case m.LastErr != nil:
		lines = append(lines, errorText.Render(ansi.Truncate("failed: "+m.LastErr.Error(), inner, "…")))
	default:
		lines = append(lines, successText.Render(ansi.Truncate(output.FormatSyncResult(*m.LastResult), inner, "…")))
	}
	if !m.LastSync.IsZero() {
		lines = append(lines, timestampStyle.Render("at "+m.LastSync.Local().Format("15:04:05")))
	}
	if m.Status.LastError != "" && m.LastErr == nil {
		lines = append(lines, errorText.Render(ansi.Truncate("last error: "+m.Status.LastError, inner, "…")))
	}
	for _, c := range m.Conflicts {
		lines = append(lines, ansi.Truncate(output.FormatConflict(c, m.Names), inner, "…"))
	}
	title := panelTitleStyle.Render("LAST SYNC")
	return panelStyle.Width(width - 2).Render(title + "\n" + strings.Join(lines, "\n"))
}

func (m Model) renderFooter(width int) string {
	status := ""
	if m.StatusMessage != "" {
		if m.StatusIsError {
			status = errorText.Render(m.StatusMessage)
		} else {
			status = successText.Render(m.StatusMessage)
		}
		status = ansi.Truncate(status, width, "…") + "\n"
	}
	return status + m.help.View(m.keys)
}
