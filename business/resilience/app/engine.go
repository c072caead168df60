// Package app contains the error classifier, the retry engine and the
// recovery handlers built on it.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/cache"
	"github.com/fd1az/chainsync/internal/logger"
)

const (
	tracerName = "github.com/fd1az/chainsync/business/resilience/app"
	meterName  = "github.com/fd1az/chainsync/business/resilience/app"
)

// HealthRegistry is the endpoint health view the engine consults and feeds.
type HealthRegistry interface {
	GetHealthyEndpoints(ctx context.Context, endpoints []string) []string
	MarkHealth(endpoint string, healthy bool)
}

// Config holds the engine's retry and fallback settings.
type Config struct {
	Retry domain.RetryPolicy
	// FallbackAttempts is the retry budget used as the last blockchain
	// recovery strategy.
	FallbackAttempts int
	// CacheTTL bounds the age of a cached value served on API errors.
	CacheTTL time.Duration
	// RateLimitWait is used when a 429 carries no Retry-After.
	RateLimitWait time.Duration

	BlockchainEndpoints []string
	APIEndpoints        []string
}

// DefaultConfig returns the default policy with no endpoints.
func DefaultConfig() Config {
	return Config{
		Retry:            domain.DefaultRetryPolicy(),
		FallbackAttempts: 2,
		CacheTTL:         5 * time.Minute,
		RateLimitWait:    5 * time.Second,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for backoff and rate-limit waits.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

type engineMetrics struct {
	attempts metric.Int64Counter
	outcomes metric.Int64Counter
	errors   metric.Int64Counter
}

// Engine classifies failures and runs operations under retry and fallback
// policies. One Engine is shared by every caller in the process.
type Engine struct {
	health HealthRegistry
	cache  *cache.Cache[string, any]
	logger logger.LoggerInterface
	clock  clock.Clock

	cfgMu sync.RWMutex
	cfg   Config

	statsMu        sync.Mutex
	totalErrors    int
	errorsByType   map[domain.ErrorType]int
	retryAttempts  int
	retrySuccesses int

	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine creates an engine. fallbackCache holds the last good value per
// call cache key; a nil cache gets a private one.
func NewEngine(cfg Config, health HealthRegistry, fallbackCache *cache.Cache[string, any], log logger.LoggerInterface, opts ...Option) (*Engine, error) {
	e := &Engine{
		health:       health,
		cache:        fallbackCache,
		logger:       log,
		clock:        clock.New(),
		cfg:          normalize(cfg),
		errorsByType: make(map[domain.ErrorType]int),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New[string, any](e.cfg.CacheTTL, cache.WithClock(e.clock))
	}

	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	e.metrics = &engineMetrics{}

	e.metrics.attempts, err = meter.Int64Counter(
		"resilience_attempts_total",
		metric.WithDescription("Operation attempts made inside retry loops"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	e.metrics.outcomes, err = meter.Int64Counter(
		"resilience_outcomes_total",
		metric.WithDescription("Recovery strategy outcomes"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return err
	}

	e.metrics.errors, err = meter.Int64Counter(
		"resilience_errors_total",
		metric.WithDescription("Classified errors by type"),
		metric.WithUnit("{error}"),
	)
	return err
}

func normalize(cfg Config) Config {
	d := DefaultConfig()
	cfg.Retry = cfg.Retry.Normalize()
	if cfg.FallbackAttempts < 1 {
		cfg.FallbackAttempts = d.FallbackAttempts
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = d.RateLimitWait
	}
	return cfg
}

// Config returns a copy of the current settings.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()

	cfg := e.cfg
	cfg.BlockchainEndpoints = append([]string(nil), e.cfg.BlockchainEndpoints...)
	cfg.APIEndpoints = append([]string(nil), e.cfg.APIEndpoints...)
	return cfg
}

// UpdateConfig applies fn to a copy of the settings and installs the result.
func (e *Engine) UpdateConfig(fn func(*Config)) {
	cfg := e.Config()
	fn(&cfg)

	e.cfgMu.Lock()
	e.cfg = normalize(cfg)
	e.cfgMu.Unlock()
}

// Stats returns a snapshot of the error counters.
func (e *Engine) Stats() domain.ErrorStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	byType := make(map[domain.ErrorType]int, len(e.errorsByType))
	for k, v := range e.errorsByType {
		byType[k] = v
	}

	var rate float64
	if e.retryAttempts > 0 {
		rate = float64(e.retrySuccesses) / float64(e.retryAttempts) * 100
	}

	return domain.ErrorStats{
		TotalErrors:          e.totalErrors,
		ErrorsByType:         byType,
		RetrySuccessRate:     rate,
		AverageRetryAttempts: float64(e.retryAttempts) / float64(max(e.totalErrors, 1)),
	}
}

func (e *Engine) recordError(ctx context.Context, c domain.Classification) {
	e.statsMu.Lock()
	e.totalErrors++
	e.errorsByType[c.Type]++
	e.statsMu.Unlock()

	e.metrics.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(c.Type))))
}

func (e *Engine) recordAttempt(ctx context.Context) {
	e.statsMu.Lock()
	e.retryAttempts++
	e.statsMu.Unlock()

	e.metrics.attempts.Add(ctx, 1)
}

func (e *Engine) recordRetrySuccess() {
	e.statsMu.Lock()
	e.retrySuccesses++
	e.statsMu.Unlock()
}

func (e *Engine) recordOutcome(ctx context.Context, strategy string, success bool) {
	e.metrics.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	))
}

// NewBackOff returns the delay sequence min(base*mult^(n-1), max) for p,
// without jitter.
func NewBackOff(p domain.RetryPolicy) *backoff.ExponentialBackOff {
	p = p.Normalize()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
