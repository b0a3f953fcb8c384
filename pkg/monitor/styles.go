package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/carelog/internal/models"
)

var (
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pendingBadge   = lipgloss.NewStyle().Foreground(warningColor)
	onlineBadge    = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineBadge   = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errorText      = lipgloss.NewStyle().Foreground(errorColor)
	successText    = lipgloss.NewStyle().Foreground(successColor)

	typeStyles = map[models.EventType]lipgloss.Style{
		models.EventFeed:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.EventDiaper: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.EventSleep:  lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
	}
)
