package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stream struct {
	connected bool
	heartbeat time.Time
}

func (s stream) IsConnected() bool        { return s.connected }
func (s stream) LastHeartbeat() time.Time { return s.heartbeat }
func (s stream) CurrentEndpoint() string  { return "wss://rpc" }

type syncer struct{ running, paused bool }

func (s syncer) IsRunning() bool { return s.running }
func (s syncer) IsPaused() bool  { return s.paused }

type endpoints []string

func (e endpoints) GetHealthyEndpoints(context.Context, []string) []string { return e }

func TestHealth_AllHealthy(t *testing.T) {
	s := NewServer(0, "v1")
	s.RegisterCheck("sync", SyncCheck(syncer{running: true, paused: true}))
	s.RegisterCheck("query", EndpointCheck(endpoints{"a"}, []string{"a", "b"}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "v1", st.Version)
	assert.Equal(t, Check{Healthy: true, Message: "paused"}, st.Checks["sync"])
	assert.Equal(t, Check{Healthy: true, Message: "1/2 healthy"}, st.Checks["query"])
}

func TestHealth_Degraded(t *testing.T) {
	s := NewServer(0, "v1")
	s.RegisterCheck("stream", StreamCheck(stream{}, time.Minute, time.Now))
	s.RegisterCheck("query", EndpointCheck(endpoints{}, []string{"a"}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready: [query stream]", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamCheck_HeartbeatSilence(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ok, msg := StreamCheck(stream{connected: true}, time.Minute, clock)(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "wss://rpc", msg)

	ok, _ = StreamCheck(stream{connected: true, heartbeat: now.Add(-30 * time.Second)}, time.Minute, clock)(context.Background())
	assert.True(t, ok)

	ok, msg = StreamCheck(stream{connected: true, heartbeat: now.Add(-2 * time.Minute)}, time.Minute, clock)(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "no heartbeat for 2m0s", msg)
}

func TestSyncCheck_Stopped(t *testing.T) {
	ok, msg := SyncCheck(syncer{})(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "stopped", msg)
}
