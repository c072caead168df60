package health

import (
	"context"
	"fmt"
	"time"
)

// StreamProbe is the live connection view used by StreamCheck.
type StreamProbe interface {
	IsConnected() bool
	LastHeartbeat() time.Time
	CurrentEndpoint() string
}

// StreamCheck fails while the live connection is down or when no heartbeat
// reply arrived within maxSilence. A zero heartbeat is accepted right after
// connecting.
func StreamCheck(p StreamProbe, maxSilence time.Duration, now func() time.Time) CheckFunc {
	return func(context.Context) (bool, string) {
		if !p.IsConnected() {
			return false, "disconnected"
		}
		last := p.LastHeartbeat()
		if !last.IsZero() && maxSilence > 0 && now().Sub(last) > maxSilence {
			return false, fmt.Sprintf("no heartbeat for %s", now().Sub(last).Round(time.Second))
		}
		return true, p.CurrentEndpoint()
	}
}

// SyncProbe is the orchestrator view used by SyncCheck.
type SyncProbe interface {
	IsRunning() bool
	IsPaused() bool
}

// SyncCheck fails while the orchestrator is stopped. A paused orchestrator
// is healthy.
func SyncCheck(p SyncProbe) CheckFunc {
	return func(context.Context) (bool, string) {
		switch {
		case !p.IsRunning():
			return false, "stopped"
		case p.IsPaused():
			return true, "paused"
		}
		return true, "running"
	}
}

// EndpointProbe is the health registry view used by EndpointCheck.
type EndpointProbe interface {
	GetHealthyEndpoints(ctx context.Context, endpoints []string) []string
}

// EndpointCheck fails when none of endpoints is healthy.
func EndpointCheck(p EndpointProbe, endpoints []string) CheckFunc {
	return func(ctx context.Context) (bool, string) {
		healthy := p.GetHealthyEndpoints(ctx, endpoints)
		return len(healthy) > 0, fmt.Sprintf("%d/%d healthy", len(healthy), len(endpoints))
	}
}
