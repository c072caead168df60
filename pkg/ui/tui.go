// Package ui provides the Bubble Tea status monitor.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	streamApp "github.com/fd1az/chainsync/business/stream/app"
	streamDomain "github.com/fd1az/chainsync/business/stream/domain"
	syncDomain "github.com/fd1az/chainsync/business/syncer/domain"
	"github.com/fd1az/chainsync/pkg/ui/components"
)

const (
	// DefaultPollInterval is how often the status snapshot is refreshed.
	DefaultPollInterval = time.Second
	maxUpdates          = 10
	maxErrors           = 5
	refreshTimeout      = 30 * time.Second
)

// Controller is the orchestrator surface the monitor drives.
type Controller interface {
	GetStatus() syncDomain.Status
	PauseSync()
	ResumeSync()
	ForceRefresh(ctx context.Context, typ syncDomain.RefreshType) error
	ClearErrors()
}

// RetryStats is the retry engine summary shown next to the performance.
type RetryStats struct {
	TotalErrors      int
	RetrySuccessRate float64
}

// Options tunes a Model.
type Options struct {
	PollInterval time.Duration
	// Stats is polled together with the status. Nil leaves the retry
	// figures at zero.
	Stats func() RetryStats
	Now   func() time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	ctrl Controller
	opts Options

	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	status  *components.StatusComponent
	stats   *components.StatsComponent
	updates *components.FeedComponent
	errors  *components.FeedComponent

	width      int
	ready      bool
	quitting   bool
	refreshing bool
	notice     string
}

// New creates a new TUI model.
func New(ctrl Controller, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return Model{
		ctrl:    ctrl,
		opts:    opts,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		status:  components.NewStatusComponent(),
		stats:   components.NewStatsComponent(),
		updates: components.NewFeedComponent("RECENT UPDATES", "Waiting for updates...", maxUpdates),
		errors:  components.NewFeedComponent("SYNC ERRORS", "No errors", maxErrors),
	}
}

// Init starts polling and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		msg := StatusMsg{Status: m.ctrl.GetStatus()}
		if m.opts.Stats != nil {
			msg.Stats = m.opts.Stats()
		}
		return msg
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return RefreshDoneMsg{Err: m.ctrl.ForceRefresh(ctx, syncDomain.RefreshAll)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.ready = true

	case TickMsg:
		return m, m.poll()

	case StatusMsg:
		m.applyStatus(msg)
		return m, m.tick()

	case UpdateMsg:
		m.updates.Add(updateRow(msg.Update))

	case ConnectionMsg:
		st := m.status.Status()
		st.State = string(msg.State)
		if msg.Endpoint != "" {
			st.Endpoint = msg.Endpoint
		}
		st.LastError = ""
		if msg.Err != nil {
			st.LastError = msg.Err.Error()
		}
		m.status.Update(st)

	case RefreshDoneMsg:
		m.refreshing = false
		m.notice = "refresh complete"
		if msg.Err != nil {
			m.notice = "refresh failed: " + msg.Err.Error()
		}
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pause):
		st := m.status.Status()
		if st.Paused {
			m.ctrl.ResumeSync()
		} else {
			m.ctrl.PauseSync()
		}
		st.Paused = !st.Paused
		m.status.Update(st)

	case key.Matches(msg, m.keys.Refresh):
		if m.refreshing {
			return m, nil
		}
		m.refreshing = true
		m.notice = "refreshing..."
		return m, m.refresh()

	case key.Matches(msg, m.keys.ClearErrors):
		m.ctrl.ClearErrors()
		m.errors.Clear()

	case key.Matches(msg, m.keys.ClearFeed):
		m.updates.Clear()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) applyStatus(msg StatusMsg) {
	s := msg.Status
	st := m.status.Status()
	st.State = s.ConnectionState
	st.Active = s.IsActive
	st.Paused = s.Paused
	st.LastSync = s.LastSync
	st.NextSync = s.NextSync
	st.Subscriptions = len(s.Subscriptions)
	m.status.Update(st)

	m.stats.Update(components.Stats{
		TotalRequests:    s.Performance.TotalRequests,
		FailedRequests:   s.Performance.FailedRequests,
		SuccessRate:      s.Performance.SuccessRate,
		AvgResponseTime:  s.Performance.AvgResponseTime,
		RecordedErrors:   msg.Stats.TotalErrors,
		RetrySuccessRate: msg.Stats.RetrySuccessRate,
	})

	rows := make([]components.FeedRow, 0, len(s.Errors))
	for i := len(s.Errors) - 1; i >= 0; i-- {
		e := s.Errors[i]
		if e.Resolved {
			continue
		}
		rows = append(rows, components.FeedRow{
			Time:    e.Timestamp.Format("15:04:05"),
			Kind:    string(e.Type),
			Target:  e.Target,
			Detail:  fmt.Sprintf("%s (retries: %d)", e.Message, e.RetryCount),
			Warning: true,
		})
	}
	m.errors.Replace(rows)
}

func updateRow(u syncDomain.Update) components.FeedRow {
	row := components.FeedRow{
		Time:   u.Timestamp.Format("15:04:05"),
		Kind:   string(u.Type),
		Target: u.Target,
	}

	switch d := u.Data.(type) {
	case syncDomain.Balance:
		row.Detail = d.Amount.String() + " " + d.Denom
		if d.Height > 0 {
			row.Detail += fmt.Sprintf(" @%d", d.Height)
		}
	case syncDomain.ContractInfo:
		row.Detail = fmt.Sprintf("%s (code %d)", d.Label, d.CodeID)
	case streamDomain.Event:
		row.Detail = string(d.Type)
		if d.Amount != "" {
			row.Detail += " " + d.Amount
		}
		if d.BlockHeight > 0 {
			row.Detail += fmt.Sprintf(" @%d", d.BlockHeight)
		}
	}
	return row
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" chainsync monitor "))
	b.WriteString("\n\n")

	width := m.width - 4
	if width < 40 {
		width = 76
	}

	top := m.status.View(m.opts.Now(), m.spinner.View()) + "\n\n" + m.stats.View()
	b.WriteString(BoxStyle.Width(width).Render(top))
	b.WriteString("\n")

	if m.width > 120 {
		half := m.width/2 - 2
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			BoxStyle.Width(half).Render(m.updates.View()),
			BoxStyle.Width(half).Render(m.errors.View()),
		))
	} else {
		b.WriteString(BoxStyle.Width(width).Render(m.updates.View()))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(m.errors.View()))
	}
	b.WriteString("\n")

	if m.status.Status().Paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	if m.notice != "" {
		b.WriteString(NoticeStyle.Render(m.notice))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

// UpdateSource delivers orchestrator updates.
type UpdateSource interface {
	SubscribeToUpdates(h syncDomain.UpdateHandler) syncDomain.CallbackID
	UnsubscribeFromUpdates(id syncDomain.CallbackID) bool
}

// ConnectionSource reports live connection transitions.
type ConnectionSource interface {
	OnStateChange(l streamApp.StateListener) streamApp.ListenerID
	RemoveStateListener(id streamApp.ListenerID)
	CurrentEndpoint() string
}

// Attach forwards updates and connection transitions to p. The returned
// function detaches both.
func Attach(p *tea.Program, updates UpdateSource, conn ConnectionSource) func() {
	cb := updates.SubscribeToUpdates(func(u syncDomain.Update) {
		go p.Send(UpdateMsg{Update: u})
	})
	lid := conn.OnStateChange(func(state streamDomain.ConnectionState, err error) {
		msg := ConnectionMsg{State: state, Err: err}
		if state == streamDomain.StateConnected {
			msg.Endpoint = conn.CurrentEndpoint()
		}
		go p.Send(msg)
	})

	return func() {
		updates.UnsubscribeFromUpdates(cb)
		conn.RemoveStateListener(lid)
	}
}

// Run starts the monitor and blocks until the user quits or ctx ends.
func Run(ctx context.Context, m Model, attach func(*tea.Program) func()) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if attach != nil {
		detach := attach(p)
		defer detach()
	}

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
