// Package domain contains the event and subscription model of the live
// event stream.
package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies what a chain event reports.
type EventType string

const (
	EventBalanceChange        EventType = "balance_change"
	EventTransactionConfirmed EventType = "transaction_confirmed"
	EventContract             EventType = "contract_event"
	EventBlockUpdate          EventType = "block_update"
)

// Event is a decoded chain event. Events are values and are never mutated
// after decoding.
type Event struct {
	Type            EventType
	Address         string
	ContractAddress string
	TxHash          string
	BlockHeight     int64
	// Amount and Sender are set on balance changes, e.g. "1500usei".
	Amount string
	Sender string
	// Attributes holds the wasm.* attributes of a contract event, keyed
	// without the prefix.
	Attributes map[string][]string
	Data       json.RawMessage
	Timestamp  time.Time
}
