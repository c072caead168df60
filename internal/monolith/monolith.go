// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/fd1az/chainsync/internal/config"
	"github.com/fd1az/chainsync/internal/di"
	"github.com/fd1az/chainsync/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Clock() clock.Clock
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Global service names registered by New.
const (
	ServiceConfig = "config"
	ServiceLogger = "logger"
	ServiceClock  = "clock"
)

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	clock     clock.Clock
	container di.Container
}

// New creates the application container. Every service is built once from
// it and shared by reference.
func New(cfg *config.Config, log logger.LoggerInterface, clk clock.Clock) *app {
	if clk == nil {
		clk = clock.New()
	}

	container := di.NewContainer()
	container.Register(ServiceConfig, cfg)
	container.Register(ServiceLogger, log)
	container.Register(ServiceClock, clk)

	return &app{
		config:    cfg,
		logger:    log,
		clock:     clk,
		container: container,
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Clock() clock.Clock {
	return a.clock
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ConfigFrom resolves the shared configuration.
func ConfigFrom(sr di.ServiceRegistry) *config.Config {
	return sr.Get(ServiceConfig).(*config.Config)
}

// LoggerFrom resolves the shared logger.
func LoggerFrom(sr di.ServiceRegistry) logger.LoggerInterface {
	return sr.Get(ServiceLogger).(logger.LoggerInterface)
}

// ClockFrom resolves the shared clock.
func ClockFrom(sr di.ServiceRegistry) clock.Clock {
	return sr.Get(ServiceClock).(clock.Clock)
}
