// Package syncer implements the sync orchestrator bounded context.
package syncer

import (
	"context"

	resilienceDI "github.com/fd1az/chainsync/business/resilience/di"
	streamDI "github.com/fd1az/chainsync/business/stream/di"
	"github.com/fd1az/chainsync/business/syncer/app"
	"github.com/fd1az/chainsync/business/syncer/domain"
	syncerDI "github.com/fd1az/chainsync/business/syncer/di"
	"github.com/fd1az/chainsync/business/syncer/infra/cosmos"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/monolith"
)

// Module implements the syncer bounded context.
type Module struct{}

// RegisterServices registers the LCD client and the orchestrator.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, syncerDI.ChainClient, func(sr di.ServiceRegistry) *cosmos.Client {
		cfg := monolith.ConfigFrom(sr)

		ccfg := cosmos.DefaultConfig()
		ccfg.Denom = cfg.Sync.Denom

		client, err := cosmos.NewClient(ccfg, monolith.LoggerFrom(sr))
		if err != nil {
			panic("failed to create lcd client: " + err.Error())
		}
		return client
	})

	di.RegisterToken(c, syncerDI.Orchestrator, func(sr di.ServiceRegistry) *app.Orchestrator {
		cfg := monolith.ConfigFrom(sr)

		orch, err := app.NewOrchestrator(
			domain.Config{
				BalanceInterval:   cfg.Sync.BalanceInterval,
				ContractInterval:  cfg.Sync.ContractInterval,
				EnableRealtime:    cfg.Sync.EnableRealtime,
				PriorityAddresses: cfg.Sync.PriorityAddresses,
				PriorityContracts: cfg.Sync.PriorityContracts,
				ItemDelay:         cfg.Sync.ItemDelay,
				PriorityCount:     cfg.Sync.PriorityCount,
				CacheMaxAge:       cfg.Sync.CacheMaxAge,
			},
			streamDI.GetManager(sr),
			syncerDI.GetChainClient(sr),
			resilienceDI.GetEngine(sr),
			monolith.LoggerFrom(sr),
			app.WithClock(monolith.ClockFrom(sr)),
		)
		if err != nil {
			panic("failed to create sync orchestrator: " + err.Error())
		}
		return orch
	})

	return nil
}

// Startup resolves the orchestrator. The entry point starts and stops the
// sync itself.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := syncerDI.GetOrchestrator(mono.Services()).GetConfig()
	mono.Logger().Info(ctx, "syncer module started",
		"realtime", cfg.EnableRealtime,
		"addresses", len(cfg.PriorityAddresses),
		"contracts", len(cfg.PriorityContracts),
	)
	return nil
}
