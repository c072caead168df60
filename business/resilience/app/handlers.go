package app

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/schedule"
)

// Call describes an endpoint-bound operation handed to the engine.
type Call[T any] struct {
	Name string
	// CacheKey identifies the result in the fallback cache. Empty disables
	// caching for the call.
	CacheKey string
	// Endpoint is the endpoint the call last ran against. Execute sets it.
	Endpoint string
	Run      EndpointOp[T]
}

func (c Call[T]) onEndpoint() Op[T] {
	return func(ctx context.Context) (T, error) {
		return c.Run(ctx, c.Endpoint)
	}
}

// Execute runs call against the first healthy blockchain endpoint and
// recovers from failures through HandleError. Successful results are stored
// in the fallback cache.
func Execute[T any](ctx context.Context, e *Engine, call Call[T]) (T, error) {
	var zero T
	cfg := e.Config()
	if len(cfg.BlockchainEndpoints) == 0 {
		return zero, apperror.New(apperror.CodeNoEndpointsConfigured, apperror.WithContext(call.Name))
	}

	primary := cfg.BlockchainEndpoints[0]
	if healthy := e.health.GetHealthyEndpoints(ctx, cfg.BlockchainEndpoints); len(healthy) > 0 {
		primary = healthy[0]
	}
	call.Endpoint = primary

	ctx, span := e.tracer.Start(ctx, "resilience.execute", trace.WithAttributes(
		attribute.String("operation", call.Name),
		attribute.String("endpoint", primary),
	))
	defer span.End()

	result, err := call.Run(ctx, primary)
	if err == nil {
		e.health.MarkHealth(primary, true)
		if call.CacheKey != "" {
			e.cache.Set(ctx, call.CacheKey, result, cfg.CacheTTL)
		}
		return result, nil
	}

	if c := Classify(err); c.Retryable && c.Type != domain.ErrorRateLimit {
		e.health.MarkHealth(primary, false)
	}

	result, err = HandleError(ctx, e, err, call)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	return result, nil
}

// HandleError records cause and routes it to the recovery path its
// classification calls for. Non-retryable errors are returned unchanged.
func HandleError[T any](ctx context.Context, e *Engine, cause error, call Call[T]) (T, error) {
	c := Classify(cause)
	e.recordError(ctx, c)

	e.logger.Warn(ctx, "operation failed",
		"operation", call.Name,
		"endpoint", call.Endpoint,
		"error_type", string(c.Type),
		"error_code", string(c.Code),
		"severity", string(c.Severity),
		"retryable", c.Retryable,
		"error", cause.Error(),
	)

	switch {
	case c.Type == domain.ErrorNetwork, c.Type == domain.ErrorRPC:
		return HandleBlockchainError(ctx, e, cause, call)
	case c.Type == domain.ErrorTimeout, c.Type == domain.ErrorRateLimit:
		return HandleAPIError(ctx, e, cause, call)
	case c.Retryable:
		return RetryOperation(ctx, e, call.Name, call.onEndpoint())
	}

	var zero T
	return zero, cause
}

// HandleBlockchainError tries healthy alternative blockchain endpoints,
// then retries the failed endpoint with the fallback budget.
func HandleBlockchainError[T any](ctx context.Context, e *Engine, cause error, call Call[T]) (T, error) {
	cfg := e.Config()
	candidates := without(cfg.BlockchainEndpoints, call.Endpoint)

	alternates := func(ctx context.Context) (T, error) {
		return TryAlternativeEndpoints(ctx, e, e.health.GetHealthyEndpoints(ctx, candidates), call.Run)
	}
	retry := func(ctx context.Context) (T, error) {
		return RetryOperation(ctx, e, call.Name, call.onEndpoint(), WithMaxAttempts(cfg.FallbackAttempts))
	}

	result, err := ExecuteWithFallback(ctx, e, call.Name, alternates, retry)
	if err != nil {
		var zero T
		return zero, apperror.New(apperror.CodeFallbackExhausted, apperror.WithContext(call.Name), apperror.WithCause(err))
	}
	return result, nil
}

// HandleAPIError honours rate limits with a wait and a single retry. Other
// failures fall back to a fresh cached value, then to healthy API endpoints.
func HandleAPIError[T any](ctx context.Context, e *Engine, cause error, call Call[T]) (T, error) {
	var zero T
	cfg := e.Config()

	if Classify(cause).Type == domain.ErrorRateLimit {
		wait, ok := RetryAfter(cause)
		if !ok || wait <= 0 {
			wait = cfg.RateLimitWait
		}

		e.logger.Info(ctx, "rate limited, waiting before retry",
			"operation", call.Name,
			"wait", wait.String(),
		)
		if err := schedule.Sleep(ctx, e.clock, wait); err != nil {
			return zero, err
		}
		return RetryOperation(ctx, e, call.Name, call.onEndpoint(), WithMaxAttempts(1))
	}

	cached := func(ctx context.Context) (T, error) {
		return cachedValue[T](ctx, e, call.CacheKey, cfg)
	}
	alternates := func(ctx context.Context) (T, error) {
		healthy := e.health.GetHealthyEndpoints(ctx, without(cfg.APIEndpoints, call.Endpoint))
		return TryAlternativeEndpoints(ctx, e, healthy, call.Run)
	}

	result, err := ExecuteWithFallback(ctx, e, call.Name, cached, alternates)
	if err != nil {
		return zero, apperror.New(apperror.CodeFallbackExhausted, apperror.WithContext(call.Name), apperror.WithCause(err))
	}
	return result, nil
}

func cachedValue[T any](ctx context.Context, e *Engine, key string, cfg Config) (T, error) {
	var zero T
	if key == "" {
		return zero, apperror.New(apperror.CodeCacheMiss)
	}

	entry, ok := e.cache.GetEntry(ctx, key)
	if !ok || e.clock.Since(entry.StoredAt) >= cfg.CacheTTL {
		return zero, apperror.New(apperror.CodeCacheMiss, apperror.WithContext(key))
	}

	v, ok := entry.Value.(T)
	if !ok {
		return zero, apperror.New(apperror.CodeCacheMiss, apperror.WithContext(key))
	}

	e.logger.Info(ctx, "serving cached value", "key", key, "age", e.clock.Since(entry.StoredAt).String())
	e.recordOutcome(ctx, "cache", true)
	return v, nil
}

func without(endpoints []string, exclude string) []string {
	return slices.DeleteFunc(slices.Clone(endpoints), func(ep string) bool { return ep == exclude })
}
