// Package domain contains the endpoint health model.
package domain

import "time"

// Health is the last known probe result for an endpoint.
type Health struct {
	Endpoint      string
	IsHealthy     bool
	LastCheckedAt time.Time
}

// Fresh reports whether the result is younger than ttl at now.
func (h Health) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(h.LastCheckedAt) < ttl
}
