// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionStatus is the live connection as shown in the header panel.
type ConnectionStatus struct {
	State         string
	Endpoint      string
	LastError     string
	Subscriptions int
	Active        bool
	Paused        bool
	LastSync      time.Time
	NextSync      time.Time
}

// StatusComponent renders connection and sync state.
type StatusComponent struct {
	status ConnectionStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{status: ConnectionStatus{State: "disconnected"}}
}

// Update replaces the displayed status.
func (s *StatusComponent) Update(status ConnectionStatus) {
	s.status = status
}

// Status returns the displayed status.
func (s *StatusComponent) Status() ConnectionStatus {
	return s.status
}

// View renders the status component. spin is drawn next to transient states.
func (s *StatusComponent) View(now time.Time, spin string) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var state string
	switch s.status.State {
	case "connected":
		state = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true).Render("● connected")
	case "connecting":
		state = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true).Render(spin + " connecting")
	case "error":
		state = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true).Render("✗ error")
	default:
		state = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true).Render("○ " + s.status.State)
	}

	sync := "stopped"
	switch {
	case s.status.Active && s.status.Paused:
		sync = "paused"
	case s.status.Active:
		sync = "running"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s", label.Render("Stream:"), state))
	if s.status.Endpoint != "" {
		b.WriteString(label.Render("  " + s.status.Endpoint))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s  %s %d\n",
		label.Render("Sync:"), sync,
		label.Render("Subscriptions:"), s.status.Subscriptions,
	))
	b.WriteString(fmt.Sprintf("%s %s  %s %s",
		label.Render("Last sync:"), ago(now, s.status.LastSync),
		label.Render("Next sync:"), until(now, s.status.NextSync),
	))
	if s.status.LastError != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Render(s.status.LastError))
	}
	return b.String()
}

func ago(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}

func until(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if d := t.Sub(now); d > 0 {
		return "in " + d.Round(time.Second).String()
	}
	return "due"
}
