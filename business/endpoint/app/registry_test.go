package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chainsync/internal/logger"
)

type fakeProber struct {
	mu     sync.Mutex
	down   map[string]bool
	probed map[string]int
}

func newFakeProber(down ...string) *fakeProber {
	p := &fakeProber{down: map[string]bool{}, probed: map[string]int{}}
	for _, d := range down {
		p.down[d] = true
	}
	return p
}

func (p *fakeProber) Probe(_ context.Context, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed[endpoint]++
	if p.down[endpoint] {
		return errors.New("connection refused")
	}
	return nil
}

func (p *fakeProber) setDown(endpoint string, down bool) {
	p.mu.Lock()
	p.down[endpoint] = down
	p.mu.Unlock()
}

func (p *fakeProber) count(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probed[endpoint]
}

func newTestRegistry(t *testing.T, p Prober, clk clock.Clock) *Registry {
	t.Helper()
	r, err := NewRegistry(p, logger.New(io.Discard, logger.LevelError, "test", nil), WithClock(clk))
	require.NoError(t, err)
	return r
}

func TestGetHealthyEndpoints_FirstTwoDown(t *testing.T) {
	eps := []string{"https://a", "https://b", "https://c"}
	r := newTestRegistry(t, newFakeProber("https://a", "https://b"), clock.NewMock())

	assert.Equal(t, []string{"https://c"}, r.GetHealthyEndpoints(context.Background(), eps))
}

func TestGetHealthyEndpoints_PreservesInputOrder(t *testing.T) {
	eps := []string{"https://e", "https://d", "https://x", "https://c", "https://b", "https://a"}
	r := newTestRegistry(t, newFakeProber("https://x"), clock.NewMock())

	got := r.GetHealthyEndpoints(context.Background(), eps)
	assert.Equal(t, []string{"https://e", "https://d", "https://c", "https://b", "https://a"}, got)
}

func TestGetHealthyEndpoints_UsesFreshCache(t *testing.T) {
	clk := clock.NewMock()
	p := newFakeProber("https://a")
	r := newTestRegistry(t, p, clk)
	eps := []string{"https://a", "https://b"}

	r.GetHealthyEndpoints(context.Background(), eps)

	// Recovered, but the failure is still within the freshness window.
	p.setDown("https://a", false)
	clk.Add(4 * time.Minute)
	assert.Equal(t, []string{"https://b"}, r.GetHealthyEndpoints(context.Background(), eps))
	assert.Equal(t, 1, p.count("https://a"))

	clk.Add(time.Minute)
	assert.Equal(t, eps, r.GetHealthyEndpoints(context.Background(), eps))
	assert.Equal(t, 2, p.count("https://a"))
}

func TestMarkHealth_OverridesProbe(t *testing.T) {
	r := newTestRegistry(t, newFakeProber(), clock.NewMock())
	eps := []string{"https://a", "https://b"}

	r.MarkHealth("https://a", false)
	assert.Equal(t, []string{"https://b"}, r.GetHealthyEndpoints(context.Background(), eps))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "https://a", snap[0].Endpoint)
	assert.False(t, snap[0].IsHealthy)
	assert.True(t, snap[1].IsHealthy)
}

type blockingProber struct{}

func (blockingProber) Probe(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheckHealth_TimeoutIsUnhealthy(t *testing.T) {
	r, err := NewRegistry(blockingProber{}, logger.New(io.Discard, logger.LevelError, "test", nil),
		WithProbeTimeout(20*time.Millisecond))
	require.NoError(t, err)

	assert.False(t, r.CheckHealth(context.Background(), "https://slow"))
}
