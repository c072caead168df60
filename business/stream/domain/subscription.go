package domain

import (
	"fmt"
	"strings"
)

// Kind is what a subscription listens to.
type Kind string

const (
	KindBalance     Kind = "balance"
	KindContract    Kind = "contract"
	KindTransaction Kind = "transaction"
	KindBlock       Kind = "block"
)

// SubscriptionID is the opaque handle returned by the subscribe calls.
type SubscriptionID uint64

// Handler receives the events of one subscription, in decode order.
type Handler func(Event)

// Subscription is a standing registration for events of one kind and target.
type Subscription struct {
	ID     SubscriptionID
	Kind   Kind
	Target string
	// RequestID is the JSON-RPC id used for every subscribe and unsubscribe
	// frame of this subscription.
	RequestID string
	Handler   Handler
}

// Query returns the Tendermint event query for the subscription.
func (s Subscription) Query() string {
	switch s.Kind {
	case KindBalance:
		return BalanceQuery(s.Target)
	case KindContract:
		return ContractQuery(s.Target)
	case KindTransaction:
		return TransactionQuery(s.Target)
	default:
		return BlockQuery()
	}
}

// Matches reports whether ev belongs to the subscription.
func (s Subscription) Matches(ev Event) bool {
	switch s.Kind {
	case KindBalance:
		return ev.Type == EventBalanceChange && ev.Address == s.Target
	case KindContract:
		return ev.Type == EventContract && ev.ContractAddress == s.Target
	case KindTransaction:
		return ev.Type == EventTransactionConfirmed && strings.EqualFold(ev.TxHash, s.Target)
	case KindBlock:
		return ev.Type == EventBlockUpdate
	}
	return false
}

func BalanceQuery(address string) string {
	return fmt.Sprintf("tm.event='Tx' AND transfer.recipient='%s'", address)
}

func ContractQuery(contract string) string {
	return fmt.Sprintf("tm.event='Tx' AND wasm._contract_address='%s'", contract)
}

func TransactionQuery(hash string) string {
	return fmt.Sprintf("tm.event='Tx' AND tx.hash='%s'", hash)
}

func BlockQuery() string {
	return "tm.event='NewBlock'"
}
