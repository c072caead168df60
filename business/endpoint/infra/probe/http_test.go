package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chainsync/internal/httpclient"
)

func TestURL(t *testing.T) {
	tests := map[string]string{
		"wss://rpc.sei-apis.com/websocket": "https://rpc.sei-apis.com",
		"ws://localhost:26657/websocket":   "http://localhost:26657",
		"ws://localhost:26657/":            "http://localhost:26657",
		"https://rest.sei-apis.com":        "https://rest.sei-apis.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, URL(in), in)
	}
}

func TestHTTPProber_Probe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	client, err := httpclient.NewInstrumentedClient()
	require.NoError(t, err)
	p := NewHTTPProber(client)

	require.NoError(t, p.Probe(context.Background(), srv.URL))

	status.Store(http.StatusServiceUnavailable)
	err = p.Probe(context.Background(), srv.URL)
	require.Error(t, err)

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.HTTPStatus())
}

func TestHTTPProber_Unreachable(t *testing.T) {
	client, err := httpclient.NewInstrumentedClient()
	require.NoError(t, err)

	assert.Error(t, NewHTTPProber(client).Probe(context.Background(), "http://127.0.0.1:1"))
}
