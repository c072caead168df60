// Package endpoint implements the endpoint health bounded context.
package endpoint

import (
	"context"

	"github.com/fd1az/chainsync/business/endpoint/app"
	endpointDI "github.com/fd1az/chainsync/business/endpoint/di"
	"github.com/fd1az/chainsync/business/endpoint/infra/probe"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/httpclient"
	"github.com/fd1az/chainsync/internal/monolith"
)

// Module implements the endpoint bounded context.
type Module struct{}

// RegisterServices registers the prober and the health registry.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, endpointDI.Prober, func(sr di.ServiceRegistry) app.Prober {
		cfg := monolith.ConfigFrom(sr)

		client, err := httpclient.NewInstrumentedClient(
			httpclient.WithProviderName("endpoint-probe"),
			httpclient.WithRequestTimeout(cfg.Endpoints.ProbeTimeout),
		)
		if err != nil {
			panic("failed to create probe http client: " + err.Error())
		}
		return probe.NewHTTPProber(client)
	})

	di.RegisterToken(c, endpointDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := monolith.ConfigFrom(sr)

		reg, err := app.NewRegistry(
			endpointDI.GetProber(sr),
			monolith.LoggerFrom(sr),
			app.WithClock(monolith.ClockFrom(sr)),
			app.WithProbeTimeout(cfg.Endpoints.ProbeTimeout),
			app.WithHealthTTL(cfg.Endpoints.HealthTTL),
		)
		if err != nil {
			panic("failed to create endpoint registry: " + err.Error())
		}
		return reg
	})

	return nil
}

// Startup warms the health cache for every configured endpoint.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	reg := endpointDI.GetRegistry(mono.Services())

	for name, eps := range map[string][]string{
		"query":     cfg.Endpoints.Query,
		"api":       cfg.Endpoints.API,
		"websocket": cfg.Endpoints.WebSocket,
	} {
		healthy := reg.GetHealthyEndpoints(ctx, eps)
		log.Info(ctx, "endpoint health", "set", name, "healthy", len(healthy), "total", len(eps))
	}

	log.Info(ctx, "endpoint module started")
	return nil
}
