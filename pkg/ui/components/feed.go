package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FeedRow is one line of a FeedComponent.
type FeedRow struct {
	Time    string
	Kind    string
	Target  string
	Detail  string
	Warning bool
}

// FeedComponent renders a bounded, newest-first list of rows.
type FeedComponent struct {
	title   string
	empty   string
	rows    []FeedRow
	maxRows int
}

// NewFeedComponent creates a feed holding at most maxRows rows.
func NewFeedComponent(title, empty string, maxRows int) *FeedComponent {
	return &FeedComponent{
		title:   title,
		empty:   empty,
		rows:    make([]FeedRow, 0, maxRows),
		maxRows: maxRows,
	}
}

// Add prepends row, dropping the oldest row when full.
func (f *FeedComponent) Add(row FeedRow) {
	f.rows = append([]FeedRow{row}, f.rows...)
	if len(f.rows) > f.maxRows {
		f.rows = f.rows[:f.maxRows]
	}
}

// Replace sets the rows, newest first, truncated to capacity.
func (f *FeedComponent) Replace(rows []FeedRow) {
	if len(rows) > f.maxRows {
		rows = rows[:f.maxRows]
	}
	f.rows = append(f.rows[:0], rows...)
}

// Clear removes every row.
func (f *FeedComponent) Clear() {
	f.rows = f.rows[:0]
}

// Len returns the number of rows.
func (f *FeedComponent) Len() int {
	return len(f.rows)
}

// Rows returns a copy of the rows, newest first.
func (f *FeedComponent) Rows() []FeedRow {
	return append([]FeedRow(nil), f.rows...)
}

// View renders the feed.
func (f *FeedComponent) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	kind := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var sb strings.Builder
	sb.WriteString(header.Render(f.title))
	sb.WriteString("\n\n")

	if len(f.rows) == 0 {
		sb.WriteString(muted.Render("  " + f.empty))
		return sb.String()
	}

	for _, r := range f.rows {
		k := kind.Render(r.Kind)
		if r.Warning {
			k = warn.Render(r.Kind)
		}
		sb.WriteString("  ")
		sb.WriteString(muted.Render(r.Time))
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(r.Target)
		if r.Detail != "" {
			sb.WriteString(muted.Render("  " + r.Detail))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
