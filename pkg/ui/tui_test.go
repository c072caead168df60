package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamDomain "github.com/fd1az/chainsync/business/stream/domain"
	syncDomain "github.com/fd1az/chainsync/business/syncer/domain"
)

type fakeController struct {
	status     syncDomain.Status
	paused     int
	resumed    int
	cleared    int
	refreshed  []syncDomain.RefreshType
	refreshErr error
}

func (f *fakeController) GetStatus() syncDomain.Status { return f.status }
func (f *fakeController) PauseSync()                   { f.paused++ }
func (f *fakeController) ResumeSync()                  { f.resumed++ }
func (f *fakeController) ClearErrors()                 { f.cleared++ }

func (f *fakeController) ForceRefresh(_ context.Context, typ syncDomain.RefreshType) error {
	f.refreshed = append(f.refreshed, typ)
	return f.refreshErr
}

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newModel(ctrl Controller) Model {
	return New(ctrl, Options{Now: func() time.Time { return now }})
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return next.(Model), cmd
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_PauseToggles(t *testing.T) {
	ctrl := &fakeController{}
	m := newModel(ctrl)

	m, _ = press(t, m, "p")
	assert.Equal(t, 1, ctrl.paused)
	assert.True(t, m.status.Status().Paused)

	m, _ = press(t, m, "p")
	assert.Equal(t, 1, ctrl.resumed)
	assert.False(t, m.status.Status().Paused)
}

func TestModel_StatusSnapshot(t *testing.T) {
	ctrl := &fakeController{status: syncDomain.Status{
		IsActive:        true,
		LastSync:        now.Add(-5 * time.Second),
		NextSync:        now.Add(25 * time.Second),
		ConnectionState: "connected",
		Subscriptions:   []uint64{1, 2, 3},
		Performance:     syncDomain.Performance{TotalRequests: 4, FailedRequests: 1, SuccessRate: 75},
		Errors: []syncDomain.SyncError{
			{Type: syncDomain.ErrorBalance, Target: "sei1a", Message: "old", Timestamp: now, Resolved: true},
			{Type: syncDomain.ErrorContract, Target: "sei1pool", Message: "timeout", Timestamp: now, RetryCount: 3},
		},
	}}
	m := newModel(ctrl)

	msg := m.poll()()
	m, cmd := send(t, m, msg)
	require.NotNil(t, cmd)

	st := m.status.Status()
	assert.Equal(t, "connected", st.State)
	assert.True(t, st.Active)
	assert.Equal(t, 3, st.Subscriptions)

	rows := m.errors.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "sei1pool", rows[0].Target)
	assert.Equal(t, "timeout (retries: 3)", rows[0].Detail)

	view := m.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "5s ago")
	assert.Contains(t, view, "in 25s")
	assert.Contains(t, view, "75.0%")
}

func TestModel_UpdateFeed(t *testing.T) {
	m := newModel(&fakeController{})

	m, _ = send(t, m, UpdateMsg{Update: syncDomain.Update{
		Type:      syncDomain.UpdateBalance,
		Target:    "sei1a",
		Timestamp: now,
		Data:      syncDomain.Balance{Amount: decimal.NewFromInt(1500), Denom: "usei", Height: 12},
	}})
	m, _ = send(t, m, UpdateMsg{Update: syncDomain.Update{
		Type:      syncDomain.UpdateTransaction,
		Target:    "sei1a",
		Timestamp: now,
		Data:      streamDomain.Event{Type: streamDomain.EventBalanceChange, Amount: "10usei"},
	}})

	rows := m.updates.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "balance_change 10usei", rows[0].Detail)
	assert.Equal(t, "1500 usei @12", rows[1].Detail)

	for i := 0; i < maxUpdates+3; i++ {
		m, _ = send(t, m, UpdateMsg{Update: syncDomain.Update{Type: syncDomain.UpdateContract, Timestamp: now}})
	}
	assert.Equal(t, maxUpdates, m.updates.Len())

	m, _ = press(t, m, "c")
	assert.Zero(t, m.updates.Len())
}

func TestModel_ForceRefresh(t *testing.T) {
	ctrl := &fakeController{refreshErr: errors.New("lcd down")}
	m := newModel(ctrl)

	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)
	assert.True(t, m.refreshing)

	_, again := press(t, m, "r")
	assert.Nil(t, again)

	m, _ = send(t, m, cmd())
	assert.Equal(t, []syncDomain.RefreshType{syncDomain.RefreshAll}, ctrl.refreshed)
	assert.False(t, m.refreshing)
	assert.Equal(t, "refresh failed: lcd down", m.notice)
}

func TestModel_ConnectionAndClearErrors(t *testing.T) {
	ctrl := &fakeController{}
	m := newModel(ctrl)

	m, _ = send(t, m, ConnectionMsg{State: streamDomain.StateConnected, Endpoint: "wss://rpc-a"})
	assert.Equal(t, "wss://rpc-a", m.status.Status().Endpoint)

	m, _ = send(t, m, ConnectionMsg{State: streamDomain.StateError, Err: errors.New("budget exhausted")})
	st := m.status.Status()
	assert.Equal(t, "error", st.State)
	assert.Equal(t, "wss://rpc-a", st.Endpoint)
	assert.Equal(t, "budget exhausted", st.LastError)

	_, _ = press(t, m, "e")
	assert.Equal(t, 1, ctrl.cleared)
}

func TestModel_Quit(t *testing.T) {
	m, cmd := press(t, newModel(&fakeController{}), "q")
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Equal(t, "\n  Goodbye!\n\n", m.View())
}
