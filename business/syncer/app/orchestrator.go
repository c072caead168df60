// Package app contains the sync orchestrator, which reconciles pushed
// transport events with periodically polled chain state.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	resilienceApp "github.com/fd1az/chainsync/business/resilience/app"
	streamDomain "github.com/fd1az/chainsync/business/stream/domain"
	"github.com/fd1az/chainsync/business/syncer/domain"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/cache"
	"github.com/fd1az/chainsync/internal/logger"
	"github.com/fd1az/chainsync/internal/ratelimit"
	"github.com/fd1az/chainsync/internal/registry"
	"github.com/fd1az/chainsync/internal/schedule"
)

const (
	tracerName = "github.com/fd1az/chainsync/business/syncer/app"
	meterName  = "github.com/fd1az/chainsync/business/syncer/app"
)

// Transport is the live event stream the orchestrator subscribes through.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() streamDomain.ConnectionState
	SubscribeToBalance(ctx context.Context, address string, h streamDomain.Handler) (streamDomain.SubscriptionID, error)
	SubscribeToContract(ctx context.Context, contract string, h streamDomain.Handler) (streamDomain.SubscriptionID, error)
	SubscribeToBlocks(ctx context.Context, h streamDomain.Handler) (streamDomain.SubscriptionID, error)
	Unsubscribe(ctx context.Context, id streamDomain.SubscriptionID) error
}

// ChainQuerier reads chain state from one endpoint.
type ChainQuerier interface {
	QueryBalance(ctx context.Context, endpoint, address string) (domain.Balance, error)
	QueryContract(ctx context.Context, endpoint, contract string) (domain.ContractInfo, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock driving the interval timers.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clk }
}

type orchestratorMetrics struct {
	refreshes       metric.Int64Counter
	refreshDuration metric.Float64Histogram
	updates         metric.Int64Counter
}

// Orchestrator drives balance and contract polling on two interval timers,
// forwards pushed events to update callbacks and records failures that
// survived every recovery strategy.
type Orchestrator struct {
	transport Transport
	chain     ChainQuerier
	engine    *resilienceApp.Engine
	logger    logger.LoggerInterface
	clock     clock.Clock

	data      *cache.Cache[string, domain.Versioned]
	errors    *domain.ErrorRing
	callbacks *registry.Table[domain.UpdateHandler]
	pacer     *ratelimit.Limiter

	// lifecycle serializes StartSync, StopSync and UpdateConfig.
	lifecycle sync.Mutex

	mu           sync.Mutex
	cfg          domain.Config
	running      bool
	paused       bool
	runCtx       context.Context
	cancelRun    context.CancelFunc
	balanceTask  *schedule.Handle
	contractTask *schedule.Handle
	subs         []streamDomain.SubscriptionID
	lastSync     time.Time
	perf         domain.Performance

	prioritizing atomic.Bool
	conflictMu   sync.Mutex

	tracer  trace.Tracer
	metrics *orchestratorMetrics
}

// NewOrchestrator creates a stopped orchestrator.
func NewOrchestrator(cfg domain.Config, transport Transport, chain ChainQuerier, engine *resilienceApp.Engine, log logger.LoggerInterface, opts ...Option) (*Orchestrator, error) {
	if transport == nil || chain == nil || engine == nil {
		return nil, apperror.New(apperror.CodeRequiredField, apperror.WithContext("orchestrator dependencies"))
	}

	cfg = normalize(cfg.Clone())
	o := &Orchestrator{
		transport: transport,
		chain:     chain,
		engine:    engine,
		logger:    log,
		clock:     clock.New(),
		errors:    domain.NewErrorRing(domain.ErrorHistorySize),
		callbacks: registry.NewTable[domain.UpdateHandler](),
		pacer:     ratelimit.NewEvery(cfg.ItemDelay),
		cfg:       cfg,
		perf:      domain.NewPerformance(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.data = cache.New[string, domain.Versioned](0, cache.WithClock(o.clock))

	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return o, nil
}

func normalize(cfg domain.Config) domain.Config {
	d := domain.DefaultConfig()
	if cfg.BalanceInterval <= 0 {
		cfg.BalanceInterval = d.BalanceInterval
	}
	if cfg.ContractInterval <= 0 {
		cfg.ContractInterval = d.ContractInterval
	}
	switch {
	case cfg.ItemDelay == 0:
		cfg.ItemDelay = d.ItemDelay
	case cfg.ItemDelay < 0:
		cfg.ItemDelay = domain.NoItemDelay
	}
	if cfg.PriorityCount <= 0 {
		cfg.PriorityCount = d.PriorityCount
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = d.CacheMaxAge
	}
	return cfg
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	o.metrics = &orchestratorMetrics{}

	o.metrics.refreshes, err = meter.Int64Counter(
		"sync_refreshes_total",
		metric.WithDescription("Balance and contract refreshes by result"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return err
	}

	o.metrics.refreshDuration, err = meter.Float64Histogram(
		"sync_refresh_duration_seconds",
		metric.WithDescription("Refresh latency including retries and fallbacks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.metrics.updates, err = meter.Int64Counter(
		"sync_updates_total",
		metric.WithDescription("Updates delivered to callbacks"),
		metric.WithUnit("{update}"),
	)
	return err
}

// StartSync connects the transport when real-time updates are enabled,
// subscribes to the priority targets and new blocks, and starts the interval
// timers. It returns nil when already running. A failed connect is recorded
// and the transport keeps reconnecting in the background.
func (o *Orchestrator) StartSync(ctx context.Context, opts ...domain.Option) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.start(ctx, opts...)
}

func (o *Orchestrator) start(ctx context.Context, opts ...domain.Option) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Debug(ctx, "sync already running")
		return nil
	}
	for _, opt := range opts {
		opt(&o.cfg)
	}
	o.cfg = normalize(o.cfg)
	cfg := o.cfg.Clone()
	o.mu.Unlock()

	o.pacer.SetInterval(cfg.ItemDelay)

	var subs []streamDomain.SubscriptionID
	if cfg.EnableRealtime {
		if err := o.transport.Connect(ctx); err != nil {
			o.recordError(ctx, domain.ErrorWebSocket, "", err, 0)
		}
		subs = o.subscribe(ctx, cfg)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	o.running = true
	o.paused = false
	o.runCtx = runCtx
	o.cancelRun = cancel
	o.subs = subs
	o.lastSync = o.clock.Now()
	o.startTimersLocked()
	o.mu.Unlock()

	o.logger.Info(ctx, "sync started",
		"realtime", cfg.EnableRealtime,
		"addresses", len(cfg.PriorityAddresses),
		"contracts", len(cfg.PriorityContracts),
		"subscriptions", len(subs),
		"balance_interval", cfg.BalanceInterval.String(),
		"contract_interval", cfg.ContractInterval.String(),
	)
	return nil
}

func (o *Orchestrator) subscribe(ctx context.Context, cfg domain.Config) []streamDomain.SubscriptionID {
	var subs []streamDomain.SubscriptionID
	add := func(target string, id streamDomain.SubscriptionID, err error) {
		if err != nil {
			o.recordError(ctx, domain.ErrorWebSocket, target, err, 0)
			return
		}
		subs = append(subs, id)
	}

	for _, addr := range cfg.PriorityAddresses {
		id, err := o.transport.SubscribeToBalance(ctx, addr, o.handleEvent)
		add(addr, id, err)
	}
	for _, contract := range cfg.PriorityContracts {
		id, err := o.transport.SubscribeToContract(ctx, contract, o.handleEvent)
		add(contract, id, err)
	}
	id, err := o.transport.SubscribeToBlocks(ctx, o.handleEvent)
	add("blocks", id, err)

	return subs
}

// StopSync stops the timers, removes every transport subscription created by
// StartSync and disconnects the transport. In-flight refreshes are cancelled
// and their results discarded.
func (o *Orchestrator) StopSync(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.stop(ctx)
}

func (o *Orchestrator) stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.stopTimersLocked()
	o.cancelRun()
	o.running = false
	o.paused = false
	subs := o.subs
	o.subs = nil
	o.mu.Unlock()

	var errs []error
	for _, id := range subs {
		if err := o.transport.Unsubscribe(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	o.transport.Disconnect()

	err := errors.Join(errs...)
	if err != nil {
		o.logger.Warn(ctx, "sync stopped with unsubscribe failures", "error", err.Error())
	} else {
		o.logger.Info(ctx, "sync stopped")
	}
	return err
}

// PauseSync stops the interval timers. Pushed events keep flowing.
func (o *Orchestrator) PauseSync() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.paused {
		return
	}
	o.paused = true
	o.stopTimersLocked()
	o.logger.Info(o.runCtx, "sync paused")
}

// ResumeSync restarts the interval timers after PauseSync.
func (o *Orchestrator) ResumeSync() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || !o.paused {
		return
	}
	o.paused = false
	o.startTimersLocked()
	o.logger.Info(o.runCtx, "sync resumed")
}

func (o *Orchestrator) startTimersLocked() {
	o.balanceTask = schedule.Every(o.runCtx, o.clock, o.cfg.BalanceInterval, func(ctx context.Context) {
		o.refreshBalances(ctx)
	})
	o.contractTask = schedule.Every(o.runCtx, o.clock, o.cfg.ContractInterval, func(ctx context.Context) {
		o.refreshContracts(ctx)
	})
}

func (o *Orchestrator) stopTimersLocked() {
	o.balanceTask.Stop()
	o.contractTask.Stop()
	o.balanceTask = nil
	o.contractTask = nil
}

// UpdateConfig applies opts and restarts the sync when it is running.
func (o *Orchestrator) UpdateConfig(ctx context.Context, opts ...domain.Option) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	for _, opt := range opts {
		opt(&o.cfg)
	}
	o.cfg = normalize(o.cfg)
	running := o.running
	o.mu.Unlock()

	o.pacer.SetInterval(o.GetConfig().ItemDelay)
	if !running {
		return nil
	}
	if err := o.stop(ctx); err != nil {
		o.logger.Warn(ctx, "restart after config update", "error", err.Error())
	}
	return o.start(ctx)
}

// GetConfig returns a copy of the current configuration.
func (o *Orchestrator) GetConfig() domain.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Clone()
}

// IsRunning reports whether StartSync is in effect.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// IsPaused reports whether the interval timers are suspended.
func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) handleEvent(ev streamDomain.Event) {
	switch ev.Type {
	case streamDomain.EventBalanceChange:
		o.notify(domain.Update{Type: domain.UpdateBalance, Target: ev.Address, Data: ev, Timestamp: ev.Timestamp})
	case streamDomain.EventContract:
		o.notify(domain.Update{Type: domain.UpdateContract, Target: ev.ContractAddress, Data: ev, Timestamp: ev.Timestamp})
	case streamDomain.EventTransactionConfirmed:
		o.notify(domain.Update{Type: domain.UpdateTransaction, Target: ev.TxHash, Data: ev, Timestamp: ev.Timestamp})
	case streamDomain.EventBlockUpdate:
		o.mu.Lock()
		ctx := o.runCtx
		running := o.running
		o.mu.Unlock()
		if !running {
			return
		}
		// Off the read goroutine. A block that arrives while the previous
		// priority refresh is still running is skipped.
		if o.prioritizing.CompareAndSwap(false, true) {
			go func() {
				defer o.prioritizing.Store(false)
				o.refreshPriority(ctx)
			}()
		}
	}
}

// refreshPriority refreshes the first PriorityCount addresses and contracts
// concurrently.
func (o *Orchestrator) refreshPriority(ctx context.Context) {
	cfg := o.GetConfig()
	addrs := cfg.PriorityAddresses[:min(cfg.PriorityCount, len(cfg.PriorityAddresses))]
	contracts := cfg.PriorityContracts[:min(cfg.PriorityCount, len(cfg.PriorityContracts))]

	var g errgroup.Group
	for _, addr := range addrs {
		g.Go(func() error { return o.RefreshAddress(ctx, addr) })
	}
	for _, contract := range contracts {
		g.Go(func() error { return o.RefreshContract(ctx, contract) })
	}
	if err := g.Wait(); err != nil {
		o.logger.Debug(ctx, "priority refresh incomplete", "error", err.Error())
	}
}

func (o *Orchestrator) refreshBalances(ctx context.Context) error {
	var errs []error
	for _, addr := range o.GetConfig().PriorityAddresses {
		if err := o.pacer.Wait(ctx); err != nil {
			return err
		}
		if err := o.RefreshAddress(ctx, addr); err != nil {
			errs = append(errs, err)
		}
	}
	o.markSynced()
	return errors.Join(errs...)
}

func (o *Orchestrator) refreshContracts(ctx context.Context) error {
	var errs []error
	for _, contract := range o.GetConfig().PriorityContracts {
		if err := o.pacer.Wait(ctx); err != nil {
			return err
		}
		if err := o.RefreshContract(ctx, contract); err != nil {
			errs = append(errs, err)
		}
	}
	o.markSynced()
	return errors.Join(errs...)
}

func (o *Orchestrator) markSynced() {
	o.mu.Lock()
	o.lastSync = o.clock.Now()
	o.mu.Unlock()
}

// ForceRefresh walks the priority lists selected by typ immediately,
// bypassing the timers.
func (o *Orchestrator) ForceRefresh(ctx context.Context, typ domain.RefreshType) error {
	if !typ.Valid() {
		return apperror.New(apperror.CodeInvalidRefreshType, apperror.WithContext(string(typ)))
	}

	var errs []error
	if typ == domain.RefreshBalance || typ == domain.RefreshAll {
		errs = append(errs, o.refreshBalances(ctx))
	}
	if typ == domain.RefreshContract || typ == domain.RefreshAll {
		errs = append(errs, o.refreshContracts(ctx))
	}
	return errors.Join(errs...)
}

// RefreshAddress polls the balance of address through the retry engine.
func (o *Orchestrator) RefreshAddress(ctx context.Context, address string) error {
	return refresh(ctx, o, domain.ErrorBalance, domain.UpdateBalance, address,
		func(ctx context.Context, endpoint string) (domain.Balance, error) {
			return o.chain.QueryBalance(ctx, endpoint, address)
		})
}

// RefreshContract polls the metadata of contract through the retry engine.
func (o *Orchestrator) RefreshContract(ctx context.Context, contract string) error {
	return refresh(ctx, o, domain.ErrorContract, domain.UpdateContract, contract,
		func(ctx context.Context, endpoint string) (domain.ContractInfo, error) {
			return o.chain.QueryContract(ctx, endpoint, contract)
		})
}

func refresh[T any](ctx context.Context, o *Orchestrator, errType domain.ErrorType, updType domain.UpdateType, target string, run resilienceApp.EndpointOp[T]) error {
	ctx, span := o.tracer.Start(ctx, "sync.refresh", trace.WithAttributes(
		attribute.String("kind", string(updType)),
		attribute.String("target", target),
	))
	defer span.End()

	key := string(updType) + "_" + target
	start := o.clock.Now()
	value, err := resilienceApp.Execute(ctx, o.engine, resilienceApp.Call[T]{
		Name:     string(updType),
		CacheKey: key,
		Run:      run,
	})
	elapsed := o.clock.Since(start)

	if ctx.Err() != nil {
		// Stopped or cancelled by the caller: the result is stale.
		return ctx.Err()
	}

	o.recordPerformance(ctx, string(updType), elapsed, err == nil)

	if err != nil {
		span.RecordError(err)
		o.recordError(ctx, errType, target, err, resilienceApp.Attempts(err))
		return apperror.New(apperror.CodeRefreshFailed, apperror.WithContext(target), apperror.WithCause(err))
	}

	o.errors.Resolve(errType, target)
	now := o.clock.Now()
	o.updateCache(ctx, key, domain.Versioned{Value: value, Timestamp: now})
	o.notify(domain.Update{Type: updType, Target: target, Data: value, Timestamp: now})
	return nil
}

func (o *Orchestrator) recordPerformance(ctx context.Context, kind string, elapsed time.Duration, success bool) {
	o.mu.Lock()
	o.perf.Record(elapsed, success)
	o.mu.Unlock()

	result := "success"
	if !success {
		result = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("result", result))
	o.metrics.refreshes.Add(ctx, 1, attrs)
	o.metrics.refreshDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (o *Orchestrator) recordError(ctx context.Context, typ domain.ErrorType, target string, err error, retries int) {
	o.errors.Add(domain.SyncError{
		Type:       typ,
		Target:     target,
		Message:    err.Error(),
		Timestamp:  o.clock.Now(),
		RetryCount: retries,
	})

	args := []any{"type", string(typ), "target", target, "retries", retries}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		args = append(args, appErr.LogAttrs()...)
	} else {
		args = append(args, "error", err.Error())
	}
	o.logger.Warn(ctx, "sync error recorded", args...)
}

// updateCache stores v under key and evicts entries older than CacheMaxAge.
func (o *Orchestrator) updateCache(ctx context.Context, key string, v domain.Versioned) {
	o.data.Set(ctx, key, v, 0)
	o.data.EvictOlderThan(o.GetConfig().CacheMaxAge)
}

// Cached returns the data cached under key, such as "balance_<address>",
// "contract_<address>" or "<kind>_conflict_resolution".
func (o *Orchestrator) Cached(ctx context.Context, key string) (domain.Versioned, bool) {
	return o.data.Get(ctx, key)
}

// ResolveDataConflict picks between a local and a remote observation of the
// same data, last writer wins. Remote wins and is cached when nothing is
// cached for kind yet or when it is newer than the cached decision.
func (o *Orchestrator) ResolveDataConflict(ctx context.Context, kind string, local, remote domain.Versioned) domain.Versioned {
	key := kind + "_conflict_resolution"

	o.conflictMu.Lock()
	defer o.conflictMu.Unlock()

	cached, ok := o.data.Get(ctx, key)
	if !ok || remote.Timestamp.After(cached.Timestamp) {
		o.updateCache(ctx, key, remote)
		return remote
	}
	return local
}

// SubscribeToUpdates registers h for every balance, contract and transaction
// update.
func (o *Orchestrator) SubscribeToUpdates(h domain.UpdateHandler) domain.CallbackID {
	return domain.CallbackID(o.callbacks.Insert(h))
}

// UnsubscribeFromUpdates removes a handler. It reports whether id was known.
func (o *Orchestrator) UnsubscribeFromUpdates(id domain.CallbackID) bool {
	_, ok := o.callbacks.Remove(registry.Token(id))
	return ok
}

func (o *Orchestrator) notify(u domain.Update) {
	for _, entry := range o.callbacks.Snapshot() {
		o.invoke(entry.Value, u)
	}
	o.metrics.updates.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(u.Type))))
}

func (o *Orchestrator) invoke(h domain.UpdateHandler, u domain.Update) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(context.Background(), "update callback panicked",
				"type", string(u.Type), "target", u.Target, "panic", fmt.Sprint(r))
		}
	}()
	h(u)
}

// GetStatus returns an advisory snapshot.
func (o *Orchestrator) GetStatus() domain.Status {
	o.mu.Lock()
	st := domain.Status{
		IsActive:    o.running,
		Paused:      o.paused,
		LastSync:    o.lastSync,
		Performance: o.perf,
	}
	if !o.lastSync.IsZero() {
		st.NextSync = o.lastSync.Add(min(o.cfg.BalanceInterval, o.cfg.ContractInterval))
	}
	st.Subscriptions = make([]uint64, len(o.subs))
	for i, id := range o.subs {
		st.Subscriptions[i] = uint64(id)
	}
	o.mu.Unlock()

	st.ConnectionState = string(o.transport.State())
	st.Errors = o.errors.Snapshot()
	return st
}

// GetErrors returns the recorded sync errors, oldest first.
func (o *Orchestrator) GetErrors() []domain.SyncError {
	return o.errors.Snapshot()
}

// ClearErrors empties the error history.
func (o *Orchestrator) ClearErrors() {
	o.errors.Clear()
}
