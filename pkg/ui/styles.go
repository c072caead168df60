package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent  = lipgloss.Color("#B91C1C")
	ColorWarning = lipgloss.Color("#F59E0B")
	ColorMuted   = lipgloss.Color("#6B7280")
	ColorBorder  = lipgloss.Color("#374151")
)

var (
	// BoxStyle frames each panel.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorAccent).
			Padding(0, 2)

	PausedStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)

	// NoticeStyle renders the last refresh outcome in the footer.
	NoticeStyle = lipgloss.NewStyle().Italic(true).Foreground(ColorMuted)
)
