package ui

import (
	streamDomain "github.com/fd1az/chainsync/business/stream/domain"
	syncDomain "github.com/fd1az/chainsync/business/syncer/domain"
)

// StatusMsg carries a polled orchestrator snapshot.
type StatusMsg struct {
	Status syncDomain.Status
	Stats  RetryStats
}

// UpdateMsg is sent for every orchestrator update.
type UpdateMsg struct {
	Update syncDomain.Update
}

// ConnectionMsg is sent when the live connection changes state.
type ConnectionMsg struct {
	State    streamDomain.ConnectionState
	Endpoint string
	Err      error
}

// RefreshDoneMsg reports the outcome of a manual refresh.
type RefreshDoneMsg struct {
	Err error
}

// TickMsg is sent periodically to poll the status.
type TickMsg struct{}
