package cache

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetRespectsTTL(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](0, WithClock(clk))
	ctx := context.Background()

	c.Set(ctx, "balance_sei1abc", 42, 5*time.Minute)

	v, ok := c.Get(ctx, "balance_sei1abc")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	clk.Add(5 * time.Minute)
	_, ok = c.Get(ctx, "balance_sei1abc")
	assert.False(t, ok)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, string](0, WithClock(clk))
	ctx := context.Background()

	c.Set(ctx, "k", "v", 0)
	clk.Add(24 * time.Hour)

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_EvictOlderThan(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](0, WithClock(clk))
	ctx := context.Background()

	c.Set(ctx, "old", 1, 0)
	clk.Add(61 * time.Minute)
	c.Set(ctx, "new", 2, 0)

	assert.Equal(t, 1, c.EvictOlderThan(time.Hour))
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "new")
	assert.True(t, ok)
}

func TestCache_GetEntryReportsStoredAt(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](0, WithClock(clk))
	ctx := context.Background()

	stored := clk.Now()
	c.Set(ctx, "k", 7, time.Minute)

	e, ok := c.GetEntry(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, stored, e.StoredAt)
	assert.Equal(t, time.Minute, e.TTL)
}

func TestCache_JanitorRemovesExpired(t *testing.T) {
	clk := clock.NewMock()
	c := New[string, int](time.Minute, WithClock(clk))
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", 1, 30*time.Second)
	c.Set(ctx, "long", 2, time.Hour)

	clk.Add(time.Minute)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	c.Delete(ctx, "long")
	assert.Equal(t, 0, c.Len())
}
