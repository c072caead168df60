// Package di contains dependency injection tokens for the resilience context.
package di

import (
	"github.com/fd1az/chainsync/business/resilience/app"
	"github.com/fd1az/chainsync/internal/cache"
	"github.com/fd1az/chainsync/internal/di"
)

// Public service tokens
var (
	Engine = di.NewToken[*app.Engine]("resilience.Engine")
)

// Private dependency tokens
var (
	FallbackCache = di.NewToken[*cache.Cache[string, any]]("resilience:fallback_cache")
)

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetFallbackCache(c di.ServiceRegistry) *cache.Cache[string, any] {
	return di.GetToken(c, FallbackCache)
}
