// Package cache provides a generic in-memory TTL cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/fd1az/chainsync/internal/schedule"
)

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry outlived its TTL at now. A zero TTL
// never expires.
func (e Entry[V]) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) >= e.TTL
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the clock used for timestamps and the janitor.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// Cache is a concurrency-safe map with per-entry TTL.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]Entry[V]
	clock   clock.Clock
	janitor *schedule.Handle
}

// New creates a cache. When cleanupInterval is positive a janitor removes
// expired entries on that interval until Close.
func New[K comparable, V any](cleanupInterval time.Duration, opts ...Option) *Cache[K, V] {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K, V]{
		items: make(map[K]Entry[V]),
		clock: o.clock,
	}

	if cleanupInterval > 0 {
		c.janitor = schedule.Every(context.Background(), c.clock, cleanupInterval, func(context.Context) {
			c.DeleteExpired()
		})
	}

	return c
}

// Set stores v under k.
func (c *Cache[K, V]) Set(_ context.Context, k K, v V, ttl time.Duration) {
	c.mu.Lock()
	c.items[k] = Entry[V]{Value: v, StoredAt: c.clock.Now(), TTL: ttl}
	c.mu.Unlock()
}

// Get returns the live value for k.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, bool) {
	e, ok := c.GetEntry(ctx, k)
	return e.Value, ok
}

// GetEntry returns the live entry for k.
func (c *Cache[K, V]) GetEntry(_ context.Context, k K) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.items[k]
	c.mu.RUnlock()

	if !ok || e.Expired(c.clock.Now()) {
		return Entry[V]{}, false
	}
	return e, true
}

// Delete removes k.
func (c *Cache[K, V]) Delete(_ context.Context, k K) {
	c.mu.Lock()
	delete(c.items, k)
	c.mu.Unlock()
}

// DeleteExpired removes entries past their TTL and returns how many.
func (c *Cache[K, V]) DeleteExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.items {
		if e.Expired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// EvictOlderThan removes entries stored more than age ago regardless of
// their TTL, and returns how many.
func (c *Cache[K, V]) EvictOlderThan(age time.Duration) int {
	cutoff := c.clock.Now().Add(-age)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.items {
		if e.StoredAt.Before(cutoff) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor.
func (c *Cache[K, V]) Close() {
	c.janitor.Stop()
}
