// Package stream implements the live event stream bounded context.
package stream

import (
	"context"

	endpointDI "github.com/fd1az/chainsync/business/endpoint/di"
	resilienceDomain "github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/business/stream/app"
	"github.com/fd1az/chainsync/business/stream/domain"
	streamDI "github.com/fd1az/chainsync/business/stream/di"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/monolith"
)

// Module implements the stream bounded context.
type Module struct{}

// RegisterServices registers the connection manager.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, streamDI.Manager, func(sr di.ServiceRegistry) *app.Manager {
		cfg := monolith.ConfigFrom(sr)
		log := monolith.LoggerFrom(sr)

		mgr, err := app.NewManager(
			app.Config{
				Endpoints:     cfg.Endpoints.WebSocket,
				MaxReconnects: cfg.Stream.MaxReconnects,
				Backoff: resilienceDomain.RetryPolicy{
					MaxAttempts: cfg.Retry.MaxAttempts,
					BaseDelay:   cfg.Retry.BaseDelay,
					MaxDelay:    cfg.Retry.MaxDelay,
					Multiplier:  cfg.Retry.Multiplier,
				},
				HeartbeatInterval: cfg.Stream.HeartbeatInterval,
				ConnectTimeout:    cfg.Stream.ConnectTimeout,
				MaxMessageSize:    cfg.Stream.MaxMessageSize,
			},
			endpointDI.GetRegistry(sr),
			log,
			app.WithClock(monolith.ClockFrom(sr)),
		)
		if err != nil {
			panic("failed to create stream manager: " + err.Error())
		}

		mgr.OnStateChange(func(state domain.ConnectionState, err error) {
			if err != nil {
				log.Warn(context.Background(), "stream state changed", "state", string(state), "error", err.Error())
				return
			}
			log.Info(context.Background(), "stream state changed", "state", string(state))
		})
		return mgr
	})

	return nil
}

// Startup resolves the manager. The sync orchestrator owns the connection
// lifecycle.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mgr := streamDI.GetManager(mono.Services())
	mono.Logger().Info(ctx, "stream module started", "endpoints", len(mgr.Endpoints()))
	return nil
}
