package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UpdateType tells consumers what an Update carries.
type UpdateType string

const (
	UpdateBalance     UpdateType = "balance"
	UpdateContract    UpdateType = "contract"
	UpdateTransaction UpdateType = "transaction"
)

// Update is delivered to orchestrator-wide callbacks. Data is a Balance or
// ContractInfo for polled refreshes and the transport event for pushed ones.
type Update struct {
	Type      UpdateType
	Target    string
	Data      any
	Timestamp time.Time
}

// UpdateHandler receives orchestrator-wide updates.
type UpdateHandler func(Update)

// CallbackID identifies a registered UpdateHandler.
type CallbackID uint64

// Coin is a single denomination amount.
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// Balance is the bank balance of an account.
type Balance struct {
	Address string
	// Amount is the balance in the configured denomination.
	Amount decimal.Decimal
	Denom  string
	Coins  []Coin
	Height int64
}

// ContractInfo is the on-chain metadata of a CosmWasm contract.
type ContractInfo struct {
	Address string
	CodeID  uint64
	Creator string
	Admin   string
	Label   string
}

// Versioned is a value stamped with the time it was observed.
type Versioned struct {
	Value     any
	Timestamp time.Time
}
