// Package resilience implements the error classification and retry bounded
// context.
package resilience

import (
	"context"

	endpointDI "github.com/fd1az/chainsync/business/endpoint/di"
	"github.com/fd1az/chainsync/business/resilience/app"
	"github.com/fd1az/chainsync/business/resilience/domain"
	resilienceDI "github.com/fd1az/chainsync/business/resilience/di"
	"github.com/fd1az/chainsync/internal/cache"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/monolith"
)

// Module implements the resilience bounded context.
type Module struct{}

// RegisterServices registers the fallback cache and the retry engine.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, resilienceDI.FallbackCache, func(sr di.ServiceRegistry) *cache.Cache[string, any] {
		cfg := monolith.ConfigFrom(sr)
		return cache.New[string, any](cfg.Retry.CacheTTL, cache.WithClock(monolith.ClockFrom(sr)))
	})

	di.RegisterToken(c, resilienceDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := monolith.ConfigFrom(sr)

		engine, err := app.NewEngine(
			app.Config{
				Retry: domain.RetryPolicy{
					MaxAttempts: cfg.Retry.MaxAttempts,
					BaseDelay:   cfg.Retry.BaseDelay,
					MaxDelay:    cfg.Retry.MaxDelay,
					Multiplier:  cfg.Retry.Multiplier,
				},
				FallbackAttempts:    cfg.Retry.FallbackAttempts,
				CacheTTL:            cfg.Retry.CacheTTL,
				RateLimitWait:       cfg.Retry.RateLimitWait,
				BlockchainEndpoints: cfg.Endpoints.Query,
				APIEndpoints:        cfg.Endpoints.API,
			},
			endpointDI.GetRegistry(sr),
			resilienceDI.GetFallbackCache(sr),
			monolith.LoggerFrom(sr),
			app.WithClock(monolith.ClockFrom(sr)),
		)
		if err != nil {
			panic("failed to create retry engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup logs the effective retry policy.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := resilienceDI.GetEngine(mono.Services()).Config()

	mono.Logger().Info(ctx, "resilience module started",
		"max_attempts", cfg.Retry.MaxAttempts,
		"base_delay", cfg.Retry.BaseDelay.String(),
		"max_delay", cfg.Retry.MaxDelay.String(),
		"fallback_attempts", cfg.FallbackAttempts,
		"blockchain_endpoints", len(cfg.BlockchainEndpoints),
		"api_endpoints", len(cfg.APIEndpoints),
	)
	return nil
}
