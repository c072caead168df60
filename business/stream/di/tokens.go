// Package di contains dependency injection tokens for the stream context.
package di

import (
	"github.com/fd1az/chainsync/business/stream/app"
	"github.com/fd1az/chainsync/internal/di"
)

// Public service tokens
var (
	Manager = di.NewToken[*app.Manager]("stream.Manager")
)

func GetManager(c di.ServiceRegistry) *app.Manager {
	return di.GetToken(c, Manager)
}
