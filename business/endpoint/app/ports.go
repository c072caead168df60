// Package app contains the endpoint health registry.
package app

import "context"

// Prober checks whether an endpoint answers. A nil error means healthy.
type Prober interface {
	Probe(ctx context.Context, endpoint string) error
}
