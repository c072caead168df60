package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds refresh and retry statistics for display.
type Stats struct {
	TotalRequests    int64
	FailedRequests   int64
	SuccessRate      float64
	AvgResponseTime  time.Duration
	RecordedErrors   int
	RetrySuccessRate float64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{stats: Stats{SuccessRate: 100}}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	rate := valueStyle.Render(fmt.Sprintf("%.1f%%", s.stats.SuccessRate))
	if s.stats.SuccessRate < 90 {
		rate = warnStyle.Render(fmt.Sprintf("%.1f%%", s.stats.SuccessRate))
	}

	return style.Render("PERFORMANCE") + "\n" +
		fmt.Sprintf("Refreshes: %s  │  Failed: %s  │  Success: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.TotalRequests)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.FailedRequests)),
			rate,
		) +
		fmt.Sprintf("Avg response: %s  │  Errors seen: %s  │  Retry success: %s",
			valueStyle.Render(s.stats.AvgResponseTime.Round(time.Millisecond).String()),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.RecordedErrors)),
			valueStyle.Render(fmt.Sprintf("%.1f%%", s.stats.RetrySuccessRate)),
		)
}
