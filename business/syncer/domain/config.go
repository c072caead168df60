// Package domain contains the sync orchestrator's configuration, status and
// update model.
package domain

import (
	"slices"
	"time"
)

// Config holds orchestrator settings.
type Config struct {
	BalanceInterval   time.Duration
	ContractInterval  time.Duration
	EnableRealtime    bool
	PriorityAddresses []string
	PriorityContracts []string
	// ItemDelay paces consecutive items of one refresh pass. Zero means the
	// default; NoItemDelay turns pacing off.
	ItemDelay time.Duration
	// PriorityCount bounds the block-triggered refresh per list.
	PriorityCount int
	// CacheMaxAge evicts data cache entries older than this on every write.
	CacheMaxAge time.Duration
}

// NoItemDelay disables pacing between refresh items.
const NoItemDelay time.Duration = -1

// DefaultConfig returns 30s balance and 60s contract polling with real-time
// updates enabled.
func DefaultConfig() Config {
	return Config{
		BalanceInterval:  30 * time.Second,
		ContractInterval: 60 * time.Second,
		EnableRealtime:   true,
		ItemDelay:        100 * time.Millisecond,
		PriorityCount:    3,
		CacheMaxAge:      time.Hour,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.PriorityAddresses = slices.Clone(c.PriorityAddresses)
	c.PriorityContracts = slices.Clone(c.PriorityContracts)
	return c
}

// Option overrides part of a Config.
type Option func(*Config)

func WithBalanceInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.BalanceInterval = d
		}
	}
}

func WithContractInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ContractInterval = d
		}
	}
}

func WithRealtime(enabled bool) Option {
	return func(c *Config) { c.EnableRealtime = enabled }
}

func WithPriorityAddresses(addrs ...string) Option {
	return func(c *Config) { c.PriorityAddresses = slices.Clone(addrs) }
}

func WithPriorityContracts(contracts ...string) Option {
	return func(c *Config) { c.PriorityContracts = slices.Clone(contracts) }
}

func WithItemDelay(d time.Duration) Option {
	return func(c *Config) { c.ItemDelay = d }
}

func WithPriorityCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PriorityCount = n
		}
	}
}

// RefreshType selects what ForceRefresh walks.
type RefreshType string

const (
	RefreshBalance  RefreshType = "balance"
	RefreshContract RefreshType = "contract"
	RefreshAll      RefreshType = "all"
)

// Valid reports whether t is a known refresh type.
func (t RefreshType) Valid() bool {
	switch t {
	case RefreshBalance, RefreshContract, RefreshAll:
		return true
	}
	return false
}
