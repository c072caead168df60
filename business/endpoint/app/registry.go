package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chainsync/business/endpoint/domain"
	"github.com/fd1az/chainsync/internal/logger"
)

const meterName = "github.com/fd1az/chainsync/business/endpoint/app"

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultHealthTTL    = 5 * time.Minute
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for freshness checks.
func WithClock(clk clock.Clock) Option {
	return func(r *Registry) { r.clock = clk }
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// WithHealthTTL sets how long a probe result is reused.
func WithHealthTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// Registry caches endpoint health and probes on demand.
type Registry struct {
	prober       Prober
	logger       logger.LoggerInterface
	clock        clock.Clock
	probeTimeout time.Duration
	ttl          time.Duration

	mu     sync.RWMutex
	health map[string]domain.Health

	probes metric.Int64Counter
}

// NewRegistry creates a registry backed by prober.
func NewRegistry(prober Prober, log logger.LoggerInterface, opts ...Option) (*Registry, error) {
	r := &Registry{
		prober:       prober,
		logger:       log,
		clock:        clock.New(),
		probeTimeout: DefaultProbeTimeout,
		ttl:          DefaultHealthTTL,
		health:       make(map[string]domain.Health),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.probes, err = otel.Meter(meterName).Int64Counter(
		"endpoint_probes_total",
		metric.WithDescription("Endpoint health probes by outcome"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// CheckHealth probes endpoint with a bounded timeout and records the result.
// A failed probe only marks the endpoint unhealthy.
func (r *Registry) CheckHealth(ctx context.Context, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	err := r.prober.Probe(probeCtx, endpoint)
	healthy := err == nil

	r.MarkHealth(endpoint, healthy)
	r.probes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("healthy", healthy)))

	if !healthy {
		r.logger.Debug(ctx, "endpoint probe failed", "endpoint", endpoint, "error", err)
	}
	return healthy
}

// GetHealthyEndpoints returns the endpoints that passed their most recent
// probe, in input order. Results older than the TTL are re-probed
// concurrently.
func (r *Registry) GetHealthyEndpoints(ctx context.Context, endpoints []string) []string {
	now := r.clock.Now()
	healthy := make([]bool, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	r.mu.RLock()
	for i, ep := range endpoints {
		if h, ok := r.health[ep]; ok && h.Fresh(now, r.ttl) {
			healthy[i] = h.IsHealthy
			continue
		}
		g.Go(func() error {
			healthy[i] = r.CheckHealth(gctx, ep)
			return nil
		})
	}
	r.mu.RUnlock()
	_ = g.Wait()

	out := make([]string, 0, len(endpoints))
	for i, ep := range endpoints {
		if healthy[i] {
			out = append(out, ep)
		}
	}
	return out
}

// MarkHealth records the outcome of a probe or a real operation.
func (r *Registry) MarkHealth(endpoint string, healthy bool) {
	r.mu.Lock()
	r.health[endpoint] = domain.Health{
		Endpoint:      endpoint,
		IsHealthy:     healthy,
		LastCheckedAt: r.clock.Now(),
	}
	r.mu.Unlock()
}

// Snapshot returns every known result sorted by endpoint.
func (r *Registry) Snapshot() []domain.Health {
	r.mu.RLock()
	out := make([]domain.Health, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
