package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvery_PacesEvents(t *testing.T) {
	l := NewEvery(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// The first token is free; three more need one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNewEvery_ZeroNeverBlocks(t *testing.T) {
	l := NewEvery(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := NewEvery(time.Hour)
	require.True(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
