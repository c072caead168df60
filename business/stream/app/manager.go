// Package app contains the connection manager of the live event stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	resilienceApp "github.com/fd1az/chainsync/business/resilience/app"
	resilienceDomain "github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/business/stream/domain"
	"github.com/fd1az/chainsync/business/stream/infra/tendermint"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/logger"
	"github.com/fd1az/chainsync/internal/registry"
	"github.com/fd1az/chainsync/internal/schedule"
	"github.com/fd1az/chainsync/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/chainsync/business/stream/app"
	meterName  = "github.com/fd1az/chainsync/business/stream/app"
)

// HealthRegistry selects reachable endpoints in configured order.
type HealthRegistry interface {
	GetHealthyEndpoints(ctx context.Context, endpoints []string) []string
}

// Config holds connection manager settings.
type Config struct {
	// Endpoints are websocket URLs in rotation order.
	Endpoints         []string
	MaxReconnects     int
	Backoff           resilienceDomain.RetryPolicy
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	MaxMessageSize    int64
}

// DefaultConfig returns 5 reconnects on the default backoff policy with a
// 30s heartbeat.
func DefaultConfig(endpoints []string) Config {
	return Config{
		Endpoints:         endpoints,
		MaxReconnects:     5,
		Backoff:           resilienceDomain.DefaultRetryPolicy(),
		HeartbeatInterval: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		MaxMessageSize:    1 << 20,
	}
}

// StateListener observes connection state transitions.
type StateListener func(state domain.ConnectionState, err error)

// ListenerID identifies a registered StateListener.
type ListenerID registry.Token

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for heartbeats and reconnect delays.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

type managerMetrics struct {
	frames        metric.Int64Counter
	events        metric.Int64Counter
	reconnects    metric.Int64Counter
	panics        metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
	state         metric.Int64Gauge
}

// Manager owns one logical connection to a Tendermint event endpoint. It
// reconnects after unexpected closes, replays every registered subscription
// on each new connection and fans decoded events out to subscribers.
type Manager struct {
	cfg    Config
	health HealthRegistry
	logger logger.LoggerInterface
	clock  clock.Clock

	subs      *registry.Table[domain.Subscription]
	listeners *registry.Table[StateListener]

	// dialMu serializes dials so explicit and scheduled connects never race.
	dialMu sync.Mutex
	// ctrlMu orders subscribe and unsubscribe frames with the registration
	// changes that produced them.
	ctrlMu sync.Mutex

	mu            sync.Mutex
	state         domain.ConnectionState
	conn          *wsconn.Client
	endpoint      string
	endpointIdx   int
	// announced holds the queries subscribed on the current connection.
	// requestQuery maps the request id each was announced with to its query.
	announced     mapset.Set[string]
	requestQuery  map[string]string
	deliberate    bool
	reconnects    int
	backoff       *backoff.ExponentialBackOff
	reconnectTask *schedule.Handle
	heartbeatTask *schedule.Handle
	lastHeartbeat time.Time

	tracer  trace.Tracer
	metrics *managerMetrics
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config, health HealthRegistry, log logger.LoggerInterface, opts ...Option) (*Manager, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, apperror.New(apperror.CodeNoEndpointsConfigured, apperror.WithContext("stream"))
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	m := &Manager{
		cfg:          cfg,
		health:       health,
		logger:       log,
		clock:        clock.New(),
		subs:         registry.NewTable[domain.Subscription](),
		listeners:    registry.NewTable[StateListener](),
		state:        domain.StateDisconnected,
		announced:    mapset.NewThreadUnsafeSet[string](),
		requestQuery: make(map[string]string),
		backoff:      resilienceApp.NewBackOff(cfg.Backoff),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return m, nil
}

func (m *Manager) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	m.metrics = &managerMetrics{}

	m.metrics.frames, err = meter.Int64Counter(
		"stream_frames_total",
		metric.WithDescription("Inbound frames by kind"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	m.metrics.events, err = meter.Int64Counter(
		"stream_events_total",
		metric.WithDescription("Decoded chain events by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	m.metrics.reconnects, err = meter.Int64Counter(
		"stream_reconnects_total",
		metric.WithDescription("Scheduled reconnect attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	m.metrics.panics, err = meter.Int64Counter(
		"stream_handler_panics_total",
		metric.WithDescription("Subscription handlers that panicked"),
		metric.WithUnit("{panic}"),
	)
	if err != nil {
		return err
	}

	m.metrics.subscriptions, err = meter.Int64UpDownCounter(
		"stream_subscriptions",
		metric.WithDescription("Registered subscriptions"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return err
	}

	m.metrics.state, err = meter.Int64Gauge(
		"stream_connection_state",
		metric.WithDescription("Connection state (0=disconnected, 1=connecting, 2=connected, 3=error)"),
		metric.WithUnit("{state}"),
	)
	return err
}

// Connect dials the current candidate endpoint. A failed dial rotates to the
// next candidate and schedules a reconnect, so the error is informational
// unless the budget is spent. Connect resets the reconnect budget.
func (m *Manager) Connect(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "stream.connect")
	defer span.End()

	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	if m.state == domain.StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.deliberate = false
	m.reconnects = 0
	m.backoff.Reset()
	m.reconnectTask.Stop()
	m.reconnectTask = nil
	m.mu.Unlock()

	if err := m.dial(ctx); err != nil {
		span.RecordError(err)
		m.dialFailed(err)
		return err
	}
	return nil
}

func (m *Manager) dialFailed(err error) {
	m.mu.Lock()
	deliberate := m.deliberate
	m.mu.Unlock()
	if deliberate {
		return
	}

	m.setState(domain.StateError, err)
	m.scheduleReconnect(err)
}

// Disconnect closes the connection deliberately. No reconnect follows.
// Registrations are kept and replayed by the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.deliberate = true
	m.reconnectTask.Stop()
	m.reconnectTask = nil
	m.heartbeatTask.Stop()
	m.heartbeatTask = nil
	conn := m.conn
	m.conn = nil
	m.announced.Clear()
	clear(m.requestQuery)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.setState(domain.StateDisconnected, nil)
	m.logger.Info(context.Background(), "stream disconnected")
}

// dial must be called with dialMu held.
func (m *Manager) dial(ctx context.Context) error {
	candidates := m.health.GetHealthyEndpoints(ctx, m.cfg.Endpoints)
	if len(candidates) == 0 {
		candidates = m.cfg.Endpoints
	}

	m.mu.Lock()
	endpoint := candidates[m.endpointIdx%len(candidates)]
	m.mu.Unlock()

	m.setState(domain.StateConnecting, nil)

	wsCfg := wsconn.DefaultConfig(endpoint, "stream")
	wsCfg.ConnectTimeout = m.cfg.ConnectTimeout
	wsCfg.MaxMessageSize = m.cfg.MaxMessageSize
	// Liveness is checked by the JSON-RPC heartbeat instead.
	wsCfg.PingInterval = 0

	client, err := wsconn.New(wsCfg)
	if err != nil {
		return err
	}
	client.OnMessage(m.handleMessage)
	client.OnStateChange(func(state wsconn.State, err error) {
		if state == wsconn.StateDisconnected {
			m.onDrop(client, err)
		}
	})

	if err := client.Connect(ctx); err != nil {
		m.mu.Lock()
		m.endpointIdx++
		m.mu.Unlock()

		m.logger.Warn(ctx, "stream dial failed", "endpoint", endpoint, "error", err.Error())
		return err
	}

	m.mu.Lock()
	if m.deliberate {
		m.mu.Unlock()
		_ = client.Close()
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(endpoint))
	}
	m.conn = client
	m.endpoint = endpoint
	m.reconnects = 0
	m.backoff.Reset()
	m.announced = mapset.NewThreadUnsafeSet[string]()
	m.requestQuery = make(map[string]string)
	m.heartbeatTask.Stop()
	m.heartbeatTask = schedule.Every(context.Background(), m.clock, m.cfg.HeartbeatInterval, func(ctx context.Context) {
		if err := client.SendJSON(ctx, tendermint.Heartbeat()); err != nil {
			m.logger.Warn(ctx, "heartbeat failed", "endpoint", endpoint, "error", err.Error())
		}
	})
	m.mu.Unlock()

	m.setState(domain.StateConnected, nil)
	m.logger.Info(ctx, "stream connected", "endpoint", endpoint, "subscriptions", m.subs.Len())

	// The read loop may have failed before the client was installed.
	if !client.IsConnected() {
		m.onDrop(client, apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(endpoint)))
		return nil
	}

	m.replay(ctx, client)
	return nil
}

// replay announces every registered query on client exactly once.
func (m *Manager) replay(ctx context.Context, client *wsconn.Client) {
	entries := m.subs.Snapshot()
	for _, e := range entries {
		m.announce(ctx, client, e.Value)
	}
	if len(entries) > 0 {
		m.logger.Info(ctx, "subscriptions replayed", "count", len(entries))
	}
}

// announce subscribes sub's query on client unless an earlier registration
// already did.
func (m *Manager) announce(ctx context.Context, client *wsconn.Client, sub domain.Subscription) {
	m.ctrlMu.Lock()
	defer m.ctrlMu.Unlock()

	query := sub.Query()
	m.mu.Lock()
	if m.conn != client || m.announced.Contains(query) {
		m.mu.Unlock()
		return
	}
	m.announced.Add(query)
	m.requestQuery[sub.RequestID] = query
	m.mu.Unlock()

	if err := client.SendJSON(ctx, tendermint.Subscribe(sub.RequestID, sub.Query())); err != nil {
		m.logger.Warn(ctx, "subscribe send failed",
			"kind", string(sub.Kind),
			"target", sub.Target,
			"error", err.Error(),
		)
	}
}

func (m *Manager) onDrop(client *wsconn.Client, cause error) {
	m.mu.Lock()
	if m.conn != client {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.heartbeatTask.Stop()
	m.heartbeatTask = nil
	m.announced.Clear()
	clear(m.requestQuery)
	m.mu.Unlock()

	state := domain.StateError
	if wsconn.IsNormalClosure(cause) {
		state = domain.StateDisconnected
	}
	m.setState(state, cause)

	m.logger.Warn(context.Background(), "stream connection lost", "state", string(state), "error", errString(cause))
	m.scheduleReconnect(cause)
}

func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	if m.deliberate {
		m.mu.Unlock()
		return
	}
	if m.reconnects >= m.cfg.MaxReconnects {
		m.mu.Unlock()

		err := apperror.New(apperror.CodeReconnectBudgetExhausted,
			apperror.WithContext(fmt.Sprintf("%d attempt(s)", m.cfg.MaxReconnects)),
			apperror.WithCause(cause))
		m.setState(domain.StateError, err)
		m.logger.Error(context.Background(), "stream reconnect budget exhausted", err.LogAttrs()...)
		return
	}

	m.reconnects++
	attempt := m.reconnects
	delay := m.backoff.NextBackOff()
	m.reconnectTask.Stop()
	m.reconnectTask = schedule.After(context.Background(), m.clock, delay, func(ctx context.Context) {
		m.reconnect(ctx, attempt)
	})
	m.mu.Unlock()

	m.metrics.reconnects.Add(context.Background(), 1)
	m.logger.Info(context.Background(), "stream reconnect scheduled", "attempt", attempt, "delay", delay.String())
}

func (m *Manager) reconnect(ctx context.Context, attempt int) {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	skip := m.deliberate || m.state == domain.StateConnected
	m.mu.Unlock()
	if skip || ctx.Err() != nil {
		return
	}

	if err := m.dial(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.dialFailed(err)
		return
	}
	m.logger.Info(ctx, "stream reconnected", "attempt", attempt)
}

func (m *Manager) handleMessage(ctx context.Context, raw []byte) {
	frame, err := tendermint.Decode(raw)
	if err != nil {
		m.metrics.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "invalid")))
		m.logger.Debug(ctx, "undecodable frame", "error", err.Error(), "size", len(raw))
		return
	}
	m.metrics.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(frame.Kind))))

	switch frame.Kind {
	case tendermint.FrameHeartbeat:
		m.mu.Lock()
		m.lastHeartbeat = m.clock.Now()
		m.mu.Unlock()
	case tendermint.FrameRPCError:
		m.logger.Warn(ctx, "rpc error frame", "id", frame.ID, "error", frame.Err.Error())
	case tendermint.FrameEvent:
		query := m.frameQuery(frame)
		for _, ev := range tendermint.Events(frame, m.clock.Now()) {
			m.metrics.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(ev.Type))))
			m.dispatch(ctx, query, ev)
		}
	}
}

// frameQuery returns the query an event frame was delivered for, from the
// frame itself or from the subscription that requested it.
func (m *Manager) frameQuery(f tendermint.Frame) string {
	if f.Query != "" {
		return f.Query
	}
	id := f.SubscriptionID()
	if id == "" {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestQuery[id]
}

// dispatch delivers ev to every matching subscription of query. Nodes send
// one frame per subscribed query, so restricting to it keeps a transaction
// that matches several queries from being delivered twice.
func (m *Manager) dispatch(ctx context.Context, query string, ev domain.Event) {
	matches := m.subs.Filter(func(s domain.Subscription) bool {
		return s.Matches(ev) && (query == "" || s.Query() == query)
	})
	for _, e := range matches {
		m.invoke(ctx, e.Token, e.Value, ev)
	}
}

func (m *Manager) invoke(ctx context.Context, tok registry.Token, sub domain.Subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.panics.Add(ctx, 1)
			m.logger.Error(ctx, "subscription handler panicked",
				"subscription", uint64(tok),
				"kind", string(sub.Kind),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.Handler(ev)
}

// SubscribeToBalance registers a handler for transfers received by address.
func (m *Manager) SubscribeToBalance(ctx context.Context, address string, h domain.Handler) (domain.SubscriptionID, error) {
	return m.subscribe(ctx, domain.KindBalance, address, h)
}

// SubscribeToContract registers a handler for wasm events of contract.
func (m *Manager) SubscribeToContract(ctx context.Context, contract string, h domain.Handler) (domain.SubscriptionID, error) {
	return m.subscribe(ctx, domain.KindContract, contract, h)
}

// SubscribeToTransaction registers a handler for the confirmation of hash.
func (m *Manager) SubscribeToTransaction(ctx context.Context, hash string, h domain.Handler) (domain.SubscriptionID, error) {
	return m.subscribe(ctx, domain.KindTransaction, hash, h)
}

// SubscribeToBlocks registers a handler for new blocks.
func (m *Manager) SubscribeToBlocks(ctx context.Context, h domain.Handler) (domain.SubscriptionID, error) {
	return m.subscribe(ctx, domain.KindBlock, "", h)
}

func (m *Manager) subscribe(ctx context.Context, kind domain.Kind, target string, h domain.Handler) (domain.SubscriptionID, error) {
	if h == nil {
		return 0, apperror.New(apperror.CodeRequiredField, apperror.WithContext("handler"))
	}
	if kind != domain.KindBlock && target == "" {
		return 0, apperror.New(apperror.CodeRequiredField, apperror.WithContext(string(kind)+" target"))
	}

	sub := domain.Subscription{
		Kind:      kind,
		Target:    target,
		RequestID: uuid.NewString(),
		Handler:   h,
	}
	tok := m.subs.Insert(sub)
	sub.ID = domain.SubscriptionID(tok)
	m.metrics.subscriptions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	// Deferred subscriptions are sent by the replay after the next connect.
	if conn != nil {
		m.announce(ctx, conn, sub)
	}

	m.logger.Debug(ctx, "subscription registered",
		"subscription", uint64(sub.ID),
		"kind", string(kind),
		"target", target,
		"deferred", conn == nil,
	)
	return sub.ID, nil
}

// Unsubscribe removes the registration. The node is told only when this
// was the last registration of its query. It is safe to call while
// disconnected.
func (m *Manager) Unsubscribe(ctx context.Context, id domain.SubscriptionID) error {
	m.ctrlMu.Lock()
	defer m.ctrlMu.Unlock()

	sub, ok := m.subs.Remove(registry.Token(id))
	if !ok {
		return apperror.New(apperror.CodeSubscriptionNotFound, apperror.WithContext(fmt.Sprint(uint64(id))))
	}
	m.metrics.subscriptions.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", string(sub.Kind))))

	query := sub.Query()
	if shared := m.subs.Filter(func(s domain.Subscription) bool { return s.Query() == query }); len(shared) > 0 {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	announced := m.announced.Contains(query)
	m.announced.Remove(query)
	reqID := sub.RequestID
	for rid, q := range m.requestQuery {
		if q == query {
			reqID = rid
			delete(m.requestQuery, rid)
		}
	}
	m.mu.Unlock()

	if conn == nil || !announced {
		return nil
	}
	if err := conn.SendJSON(ctx, tendermint.Unsubscribe(reqID, query)); err != nil {
		return apperror.New(apperror.CodeUnsubscribeFailed, apperror.WithContext(query), apperror.WithCause(err))
	}
	return nil
}

// UnsubscribeAll removes every registration.
func (m *Manager) UnsubscribeAll(ctx context.Context) error {
	var errs []error
	for _, e := range m.subs.Snapshot() {
		if err := m.Unsubscribe(ctx, domain.SubscriptionID(e.Token)); err != nil && !apperror.HasCode(err, apperror.CodeSubscriptionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnStateChange registers a state listener. Listeners run on the goroutine
// that caused the transition and must not block.
func (m *Manager) OnStateChange(l StateListener) ListenerID {
	return ListenerID(m.listeners.Insert(l))
}

// RemoveStateListener unregisters a listener.
func (m *Manager) RemoveStateListener(id ListenerID) {
	m.listeners.Remove(registry.Token(id))
}

func (m *Manager) setState(state domain.ConnectionState, cause error) {
	m.mu.Lock()
	// A repeated error is still reported so listeners see the latest cause.
	if m.state == state && (state != domain.StateError || cause == nil) {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	m.metrics.state.Record(context.Background(), state.Value())
	for _, e := range m.listeners.Snapshot() {
		e.Value(state, cause)
	}
}

// State returns the connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is up.
func (m *Manager) IsConnected() bool {
	return m.State() == domain.StateConnected
}

// LastHeartbeat returns when the last heartbeat reply arrived.
func (m *Manager) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeat
}

// CurrentEndpoint returns the endpoint of the last successful dial.
func (m *Manager) CurrentEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// Endpoints returns the configured endpoints in rotation order.
func (m *Manager) Endpoints() []string {
	return append([]string(nil), m.cfg.Endpoints...)
}

// SubscriptionCount returns the number of registrations.
func (m *Manager) SubscriptionCount() int {
	return m.subs.Len()
}

// Subscriptions returns the registrations ordered by id.
func (m *Manager) Subscriptions() []domain.Subscription {
	entries := m.subs.Snapshot()
	out := make([]domain.Subscription, len(entries))
	for i, e := range entries {
		out[i] = e.Value
		out[i].ID = domain.SubscriptionID(e.Token)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
