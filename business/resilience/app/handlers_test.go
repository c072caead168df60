package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/apperror"
)

// endpointScript fails the configured endpoints and records every call.
type endpointScript struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (s *endpointScript) run(_ context.Context, ep string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ep)
	if err := s.fail[ep]; err != nil {
		return "", err
	}
	return "value@" + ep, nil
}

func (s *endpointScript) setFail(ep string, err error) {
	s.mu.Lock()
	s.fail[ep] = err
	s.mu.Unlock()
}

func (s *endpointScript) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newScript() *endpointScript {
	return &endpointScript{fail: map[string]error{}}
}

func TestExecute_NoEndpoints(t *testing.T) {
	e := newTestEngine(t, newFakeHealth(), clock.NewMock(), func(c *Config) { c.BlockchainEndpoints = nil })

	_, err := Execute(context.Background(), e, Call[string]{Name: "balance", Run: newScript().run})
	assert.Equal(t, apperror.CodeNoEndpointsConfigured, apperror.GetCode(err))
}

func TestExecute_UsesFirstHealthyEndpoint(t *testing.T) {
	h := newFakeHealth("a")
	e := newTestEngine(t, h, clock.NewMock(), nil)
	s := newScript()

	v, err := Execute(context.Background(), e, Call[string]{Name: "balance", Run: s.run})
	require.NoError(t, err)
	assert.Equal(t, "value@b", v)
	assert.Equal(t, []string{"b"}, s.called())
	assert.Equal(t, []bool{true}, h.marksFor("b"))
}

func TestExecute_NetworkErrorFailsOverToAlternate(t *testing.T) {
	h := newFakeHealth()
	e := newTestEngine(t, h, clock.NewMock(), nil)
	s := newScript()
	s.setFail("a", errReset)

	v, err := Execute(context.Background(), e, Call[string]{Name: "balance", Run: s.run})
	require.NoError(t, err)
	assert.Equal(t, "value@b", v)
	assert.Equal(t, []string{"a", "b"}, s.called())
	assert.Equal(t, []bool{false}, h.marksFor("a"))

	stats := e.Stats()
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.ErrorsByType[domain.ErrorNetwork])
}

func TestExecute_BlockchainFallbackExhausted(t *testing.T) {
	clk := clock.NewMock()
	e := newTestEngine(t, newFakeHealth(), clk, nil)
	s := newScript()
	s.setFail("a", errReset)
	s.setFail("b", errReset)

	_, err := runAdvancing(t, clk, func() (string, error) {
		return Execute(context.Background(), e, Call[string]{Name: "balance", Run: s.run})
	})

	require.Error(t, err)
	assert.Equal(t, apperror.CodeFallbackExhausted, apperror.GetCode(err))
	assert.Equal(t, 2, Attempts(err))
	// primary, the alternate, then two retries of the primary.
	assert.Equal(t, []string{"a", "b", "a", "a"}, s.called())
}

func TestExecute_RateLimitHonoursRetryAfter(t *testing.T) {
	clk := clock.NewMock()
	h := newFakeHealth()
	e := newTestEngine(t, h, clk, nil)
	start := clk.Now()

	var calls atomic.Int32
	run := func(_ context.Context, ep string) (string, error) {
		if calls.Add(1) == 1 {
			return "", statusErr(http.StatusTooManyRequests, "2")
		}
		return "value@" + ep, nil
	}

	v, err := runAdvancing(t, clk, func() (string, error) {
		return Execute(context.Background(), e, Call[string]{Name: "balance", Run: run})
	})

	require.NoError(t, err)
	assert.Equal(t, "value@a", v)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, clk.Now().Sub(start), 2*time.Second)
	// A rate limit says nothing about endpoint health.
	assert.Empty(t, h.marksFor("a"))
}

func TestHandleAPIError_RateLimitDefaultWait(t *testing.T) {
	clk := clock.NewMock()
	e := newTestEngine(t, newFakeHealth(), clk, nil)
	s := newScript()
	start := clk.Now()

	_, err := runAdvancing(t, clk, func() (string, error) {
		return HandleAPIError(context.Background(), e, statusErr(http.StatusTooManyRequests, ""),
			Call[string]{Name: "balance", Endpoint: "a", Run: s.run})
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, clk.Now().Sub(start), 5*time.Second)
	assert.Equal(t, []string{"a"}, s.called())
}

func TestExecute_TimeoutServedFromCache(t *testing.T) {
	clk := clock.NewMock()
	e := newTestEngine(t, newFakeHealth(), clk, nil)
	s := newScript()
	call := Call[string]{Name: "balance", CacheKey: "balance:sei1", Run: s.run}

	v, err := Execute(context.Background(), e, call)
	require.NoError(t, err)
	require.Equal(t, "value@a", v)

	s.setFail("a", fmt.Errorf("lcd: %w", context.DeadlineExceeded))
	clk.Add(time.Minute)

	v, err = Execute(context.Background(), e, call)
	require.NoError(t, err)
	assert.Equal(t, "value@a", v)
	assert.Equal(t, 1, e.Stats().ErrorsByType[domain.ErrorTimeout])
}

func TestExecute_StaleCacheFallsBackToAPIEndpoints(t *testing.T) {
	clk := clock.NewMock()
	e := newTestEngine(t, newFakeHealth(), clk, nil)
	s := newScript()
	call := Call[string]{Name: "balance", CacheKey: "balance:sei1", Run: s.run}

	_, err := Execute(context.Background(), e, call)
	require.NoError(t, err)

	s.setFail("a", fmt.Errorf("lcd: %w", context.DeadlineExceeded))
	clk.Add(6 * time.Minute)

	v, err := Execute(context.Background(), e, call)
	require.NoError(t, err)
	assert.Equal(t, "value@api", v)
}

func TestExecute_NonRetryableSurfacesUnchanged(t *testing.T) {
	e := newTestEngine(t, newFakeHealth(), clock.NewMock(), nil)
	errInvalid := errors.New("invalid contract address")
	s := newScript()
	s.setFail("a", errInvalid)

	_, err := Execute(context.Background(), e, Call[string]{Name: "contract", Run: s.run})
	require.ErrorIs(t, err, errInvalid)
	assert.Equal(t, []string{"a"}, s.called())
	assert.Equal(t, 1, e.Stats().TotalErrors)
}

func TestHandleError_ServerErrorRetries(t *testing.T) {
	clk := clock.NewMock()
	e := newTestEngine(t, newFakeHealth(), clk, nil)

	var calls atomic.Int32
	run := func(context.Context, string) (int, error) {
		if calls.Add(1) == 1 {
			return 0, statusErr(http.StatusBadGateway, "")
		}
		return 7, nil
	}

	v, err := runAdvancing(t, clk, func() (int, error) {
		return HandleError(context.Background(), e, statusErr(http.StatusBadGateway, ""),
			Call[int]{Name: "height", Endpoint: "a", Run: run})
	})

	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, e.Stats().ErrorsByType[domain.ErrorServer])
}
