package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peer starts a websocket server that runs handle for each accepted
// connection and closes it normally afterwards.
func peer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if handle != nil {
			handle(r.Context(), conn)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func hold(d time.Duration) func(context.Context, *websocket.Conn) {
	return func(context.Context, *websocket.Conn) { time.Sleep(d) }
}

func echo(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return
		}
	}
}

func drain(onRead func([]byte)) func(context.Context, *websocket.Conn) {
	return func(ctx context.Context, conn *websocket.Conn) {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if onRead != nil {
				onRead(data)
			}
		}
	}
}

// newClient builds a client for url with pings disabled unless mutate
// turns them on.
func newClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(url, "tendermint")
	cfg.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_Connect(t *testing.T) {
	c := newClient(t, peer(t, hold(100*time.Millisecond)), nil)

	require.NoError(t, c.Connect(testCtx(t)))
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.IsConnected())
}

func TestClient_ConnectRefused(t *testing.T) {
	c := newClient(t, "ws://localhost:59999", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Error(t, c.Connect(ctx))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_SendJSON(t *testing.T) {
	got := make(chan []byte, 1)
	c := newClient(t, peer(t, drain(func(b []byte) { got <- b })), nil)
	ctx := testCtx(t)
	require.NoError(t, c.Connect(ctx))

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "subscribe",
		"id":      "sub-1",
		"params":  map[string]string{"query": "tm.event='NewBlock'"},
	}
	require.NoError(t, c.SendJSON(ctx, req))

	select {
	case raw := <-got:
		var parsed map[string]any
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, "subscribe", parsed["method"])
		assert.Equal(t, "sub-1", parsed["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the request")
	}
}

func TestClient_OnMessage(t *testing.T) {
	c := newClient(t, peer(t, echo), nil)

	got := make(chan []byte, 1)
	c.OnMessage(func(_ context.Context, msg []byte) { got <- msg })

	ctx := testCtx(t)
	require.NoError(t, c.Connect(ctx))

	frame := []byte(`{"jsonrpc":"2.0","id":"hb","result":{}}`)
	require.NoError(t, c.Send(ctx, frame))

	select {
	case msg := <-got:
		assert.Equal(t, string(frame), string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestClient_StateTransitions(t *testing.T) {
	c := newClient(t, peer(t, hold(100*time.Millisecond)), nil)

	var (
		mu     sync.Mutex
		states []State
	)
	c.OnStateChange(func(s State, _ error) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(testCtx(t)))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, []State{StateConnecting, StateConnected}, states[:2])
}

func TestClient_Close(t *testing.T) {
	c := newClient(t, peer(t, drain(nil)), nil)
	require.NoError(t, c.Connect(testCtx(t)))

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Close())
}

func TestClient_ConcurrentSend(t *testing.T) {
	var received atomic.Int32
	c := newClient(t, peer(t, drain(func([]byte) { received.Add(1) })), nil)
	ctx := testCtx(t)
	require.NoError(t, c.Connect(ctx))

	const senders, perSender = 10, 5
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				assert.NoError(t, c.SendJSON(ctx, map[string]int{"sender": id, "seq": j}))
			}
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return received.Load() == senders*perSender
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_OversizedMessageDrops(t *testing.T) {
	big := func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(strings.Repeat("A", 1<<20)))
		time.Sleep(100 * time.Millisecond)
	}
	c := newClient(t, peer(t, big), func(cfg *Config) { cfg.MaxMessageSize = 100 })
	require.NoError(t, c.Connect(testCtx(t)))

	assert.Eventually(t, func() bool {
		return c.State() != StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_PeerCloseReportsDisconnected(t *testing.T) {
	c := newClient(t, peer(t, hold(50*time.Millisecond)), nil)

	dropped := make(chan error, 1)
	c.OnStateChange(func(s State, err error) {
		if s == StateDisconnected {
			dropped <- err
		}
	})
	require.NoError(t, c.Connect(testCtx(t)))

	select {
	case err := <-dropped:
		assert.True(t, IsNormalClosure(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect reported")
	}
	assert.False(t, c.IsConnected())
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := newClient(t, "ws://localhost:59999", nil)
	assert.Error(t, c.Send(context.Background(), []byte("x")))
}

func TestClient_PingAgainstReadingPeer(t *testing.T) {
	c := newClient(t, peer(t, echo), func(cfg *Config) { cfg.PingInterval = 20 * time.Millisecond })
	require.NoError(t, c.Connect(testCtx(t)))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, c.IsConnected())
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestIsNormalClosure(t *testing.T) {
	assert.False(t, IsNormalClosure(nil))
	assert.False(t, IsNormalClosure(context.DeadlineExceeded))
}
