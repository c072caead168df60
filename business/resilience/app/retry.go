package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/schedule"
)

// Op is a unit of work the engine may run more than once.
type Op[T any] func(ctx context.Context) (T, error)

// EndpointOp runs against a specific endpoint.
type EndpointOp[T any] func(ctx context.Context, endpoint string) (T, error)

// RetryError is returned when a retry loop gives up.
type RetryError struct {
	Attempts       int
	Classification domain.Classification
	Last           error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// FallbackError is returned when the primary and every fallback failed.
type FallbackError struct {
	Op   string
	Errs []error
}

func (e *FallbackError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: all %d strategies failed: %s", e.Op, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *FallbackError) Unwrap() []error { return e.Errs }

// Attempts returns how many attempts a failed retry loop made, or 0.
func Attempts(err error) int {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

// RetryOption adjusts a single retry loop.
type RetryOption func(*domain.RetryPolicy)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) RetryOption {
	return func(p *domain.RetryPolicy) { p.MaxAttempts = n }
}

// WithBaseDelay overrides the wait before the second attempt.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(p *domain.RetryPolicy) { p.BaseDelay = d }
}

// WithMaxDelay overrides the cap on a single wait.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(p *domain.RetryPolicy) { p.MaxDelay = d }
}

func WithMultiplier(m float64) RetryOption {
	return func(p *domain.RetryPolicy) { p.Multiplier = m }
}

// RetryOperation runs op until it succeeds, fails with a non-retryable
// error, or the attempt budget is spent. Waits between attempts follow the
// engine's backoff policy on the engine's clock.
func RetryOperation[T any](ctx context.Context, e *Engine, name string, op Op[T], opts ...RetryOption) (T, error) {
	policy := e.Config().Retry
	for _, opt := range opts {
		opt(&policy)
	}
	policy = policy.Normalize()

	ctx, span := e.tracer.Start(ctx, "resilience.retry", trace.WithAttributes(
		attribute.String("operation", name),
		attribute.Int("max_attempts", policy.MaxAttempts),
	))
	defer span.End()

	var zero T
	b := NewBackOff(policy)

	var (
		lastErr error
		verdict domain.Classification
	)
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		e.recordAttempt(ctx)

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.recordRetrySuccess()
			}
			span.SetAttributes(attribute.Int("attempts", attempt))
			return result, nil
		}

		lastErr = err
		verdict = Classify(err)

		if !verdict.Retryable || attempt == policy.MaxAttempts {
			span.SetAttributes(attribute.Int("attempts", attempt))
			span.SetStatus(codes.Error, err.Error())
			return zero, &RetryError{Attempts: attempt, Classification: verdict, Last: err}
		}

		delay := b.NextBackOff()
		e.logger.Debug(ctx, "retrying operation",
			"operation", name,
			"attempt", attempt,
			"delay", delay.String(),
			"error_type", string(verdict.Type),
			"error", err.Error(),
		)

		if err := schedule.Sleep(ctx, e.clock, delay); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return zero, &RetryError{Attempts: attempt, Classification: verdict, Last: err}
		}
	}

	// Unreachable with MaxAttempts >= 1.
	return zero, &RetryError{Attempts: policy.MaxAttempts, Classification: verdict, Last: lastErr}
}

// ExecuteWithFallback runs primary, then each fallback in order, returning
// the first success.
func ExecuteWithFallback[T any](ctx context.Context, e *Engine, name string, primary Op[T], fallbacks ...Op[T]) (T, error) {
	var zero T
	errs := make([]error, 0, len(fallbacks)+1)

	for i, op := range append([]Op[T]{primary}, fallbacks...) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := op(ctx)
		if err == nil {
			if i > 0 {
				e.logger.Info(ctx, "fallback succeeded", "operation", name, "fallback", i)
			}
			e.recordOutcome(ctx, "fallback", true)
			return result, nil
		}
		errs = append(errs, err)
	}

	e.recordOutcome(ctx, "fallback", false)
	return zero, &FallbackError{Op: name, Errs: errs}
}

// TryAlternativeEndpoints runs op against each endpoint in order and
// returns the first success. Each outcome is fed back to the health
// registry.
func TryAlternativeEndpoints[T any](ctx context.Context, e *Engine, endpoints []string, op EndpointOp[T]) (T, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, apperror.New(apperror.CodeNoHealthyEndpoints)
	}

	var lastErr error
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx, ep)
		e.health.MarkHealth(ep, err == nil)
		if err == nil {
			e.recordOutcome(ctx, "alternate_endpoint", true)
			return result, nil
		}

		lastErr = err
		e.logger.Warn(ctx, "alternate endpoint failed", "endpoint", ep, "error", err.Error())
	}

	e.recordOutcome(ctx, "alternate_endpoint", false)
	return zero, apperror.New(apperror.CodeAllEndpointsFailed,
		apperror.WithContext(fmt.Sprintf("%d endpoint(s)", len(endpoints))),
		apperror.WithCause(lastErr))
}
