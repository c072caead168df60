package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery_TicksUntilStopped(t *testing.T) {
	clk := clock.NewMock()
	var calls atomic.Int32

	h := Every(context.Background(), clk, 30*time.Second, func(context.Context) {
		calls.Add(1)
	})

	clk.Add(30 * time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(30 * time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	<-h.Done()

	clk.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvery_StopCancelsCallbackContext(t *testing.T) {
	clk := clock.NewMock()
	started := make(chan struct{})
	cancelled := make(chan struct{})

	h := Every(context.Background(), clk, time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})

	clk.Add(time.Second)
	<-started
	h.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("callback context was not cancelled")
	}
}

func TestAfter_FiresOnce(t *testing.T) {
	clk := clock.NewMock()
	var calls atomic.Int32

	After(context.Background(), clk, 2*time.Second, func(context.Context) { calls.Add(1) })

	clk.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAfter_StoppedBeforeDeadline(t *testing.T) {
	clk := clock.NewMock()
	var calls atomic.Int32

	h := After(context.Background(), clk, time.Second, func(context.Context) { calls.Add(1) })
	h.Stop()
	h.Stop()
	<-h.Done()

	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHandle_NilStop(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, h.Stop)
}

func TestSleep(t *testing.T) {
	clk := clock.NewMock()
	done := make(chan error, 1)

	go func() { done <- Sleep(context.Background(), clk, 5*time.Second) }()

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, clock.New(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
