// Package di contains dependency injection tokens for the endpoint context.
package di

import (
	"github.com/fd1az/chainsync/business/endpoint/app"
	"github.com/fd1az/chainsync/internal/di"
)

// Public service tokens
var (
	Registry = di.NewToken[*app.Registry]("endpoint.Registry")
)

// Private dependency tokens
var (
	Prober = di.NewToken[app.Prober]("endpoint:prober")
)

func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetProber(c di.ServiceRegistry) app.Prober {
	return di.GetToken(c, Prober)
}
