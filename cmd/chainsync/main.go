// Package main is the entry point for the chainsync service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/chainsync/business/endpoint"
	endpointDI "github.com/fd1az/chainsync/business/endpoint/di"
	"github.com/fd1az/chainsync/business/resilience"
	resilienceDI "github.com/fd1az/chainsync/business/resilience/di"
	"github.com/fd1az/chainsync/business/stream"
	streamDI "github.com/fd1az/chainsync/business/stream/di"
	"github.com/fd1az/chainsync/business/syncer"
	syncerDI "github.com/fd1az/chainsync/business/syncer/di"
	"github.com/fd1az/chainsync/internal/apm"
	"github.com/fd1az/chainsync/internal/config"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/health"
	"github.com/fd1az/chainsync/internal/logger"
	"github.com/fd1az/chainsync/internal/metrics"
	"github.com/fd1az/chainsync/internal/monolith"
	"github.com/fd1az/chainsync/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Run the interactive status monitor")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chainsync %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	// The monitor owns the terminal, so logs are dropped in TUI mode.
	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting chainsync",
		"version", version,
		"environment", cfg.App.Environment,
	)

	errc := make(chan error, 2)

	shutdown, err := startTelemetry(ctx, cfg, log, errc)
	if err != nil {
		return err
	}
	defer shutdown()

	mono := monolith.New(cfg, log, nil)

	modules := []monolith.Module{
		&endpoint.Module{},
		&resilience.Module{},
		&stream.Module{},
		&syncer.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	healthServer := newHealthServer(cfg, mono.Services())
	healthServer.Start(errc)
	log.Info(ctx, "health server started", "port", cfg.Health.Port)
	defer stopWithTimeout(healthServer.Stop)

	orch := syncerDI.GetOrchestrator(mono.Services())
	if err := orch.StartSync(ctx); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := orch.StopSync(stopCtx); err != nil {
			log.Warn(stopCtx, "sync stopped with errors", "error", err)
		}
	}()

	if tuiMode {
		return runTUI(ctx, mono.Services())
	}

	log.Info(ctx, "sync running")

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error(ctx, "server failed", "error", err)
		return err
	}

	log.Info(context.Background(), "shutting down")
	return nil
}

func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface, errc chan<- error) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    apm.Exporter(cfg.Telemetry.Exporter),
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     cfg.Telemetry.OTLPHeaders,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if cfg.Telemetry.Exporter == string(apm.OTLPGRPCExporter) && cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithProviderConfig(metrics.NewOTLPConfig(
			cfg.Telemetry.OTLPEndpoint, apm.ParseHeaders(cfg.Telemetry.OTLPHeaders), true,
		)))
	}

	mp, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		_ = tp.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.Telemetry.PrometheusPort)
	metricsServer.Start(errc)
	log.Info(ctx, "telemetry initialized",
		"exporter", cfg.Telemetry.Exporter,
		"prometheus_port", cfg.Telemetry.PrometheusPort,
	)

	return func() {
		stopWithTimeout(metricsServer.Stop)
		stopWithTimeout(mp.Shutdown)
		if err := tp.Stop(); err != nil {
			log.Warn(context.Background(), "trace provider stop failed", "error", err)
		}
	}, nil
}

func newHealthServer(cfg *config.Config, sr di.ServiceRegistry) *health.Server {
	mgr := streamDI.GetManager(sr)
	orch := syncerDI.GetOrchestrator(sr)
	reg := endpointDI.GetRegistry(sr)
	engine := resilienceDI.GetEngine(sr)

	srv := health.NewServer(cfg.Health.Port, version)
	srv.RegisterCheck("sync", health.SyncCheck(orch))
	srv.RegisterCheck("query_endpoints", health.EndpointCheck(reg, cfg.Endpoints.Query))
	if cfg.Sync.EnableRealtime {
		srv.RegisterCheck("stream", health.StreamCheck(mgr, 3*cfg.Stream.HeartbeatInterval, time.Now))
	}
	srv.RegisterCheck("retry", func(context.Context) (bool, string) {
		st := engine.Stats()
		return true, fmt.Sprintf("%d errors, %.1f%% retry success", st.TotalErrors, st.RetrySuccessRate)
	})
	return srv
}

func runTUI(ctx context.Context, sr di.ServiceRegistry) error {
	orch := syncerDI.GetOrchestrator(sr)
	mgr := streamDI.GetManager(sr)
	engine := resilienceDI.GetEngine(sr)

	model := ui.New(orch, ui.Options{
		Stats: func() ui.RetryStats {
			st := engine.Stats()
			return ui.RetryStats{TotalErrors: st.TotalErrors, RetrySuccessRate: st.RetrySuccessRate}
		},
	})

	err := ui.Run(ctx, model, func(p *tea.Program) func() {
		return ui.Attach(p, orch, mgr)
	})
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func stopWithTimeout(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = stop(ctx)
}
