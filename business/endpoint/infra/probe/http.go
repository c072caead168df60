// Package probe implements endpoint health probes over HTTP.
package probe

import (
	"context"
	"strings"

	"github.com/fd1az/chainsync/internal/httpclient"
)

// HTTPProber sends a HEAD request to the endpoint origin. Any status below
// 400 is healthy.
type HTTPProber struct {
	client httpclient.Client
}

// NewHTTPProber creates a prober using client.
func NewHTTPProber(client httpclient.Client) *HTTPProber {
	return &HTTPProber{client: client}
}

// Probe implements app.Prober.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string) error {
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("op", "probe")),
	).Head(ctx, URL(endpoint))
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return httpclient.NewStatusError(resp.Response, nil)
	}
	return nil
}

// URL maps a websocket RPC endpoint to the HTTP origin that serves it.
// Other endpoints are returned unchanged.
func URL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		endpoint = "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		endpoint = "http://" + strings.TrimPrefix(endpoint, "ws://")
	default:
		return endpoint
	}
	return strings.TrimSuffix(strings.TrimSuffix(endpoint, "/"), "/websocket")
}
