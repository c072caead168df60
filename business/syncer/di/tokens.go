// Package di contains dependency injection tokens for the syncer context.
package di

import (
	"github.com/fd1az/chainsync/business/syncer/app"
	"github.com/fd1az/chainsync/business/syncer/infra/cosmos"
	"github.com/fd1az/chainsync/internal/di"
)

// Public service tokens
var (
	Orchestrator = di.NewToken[*app.Orchestrator]("syncer.Orchestrator")
)

// Private dependency tokens
var (
	ChainClient = di.NewToken[*cosmos.Client]("syncer:chain_client")
)

func GetOrchestrator(c di.ServiceRegistry) *app.Orchestrator {
	return di.GetToken(c, Orchestrator)
}

func GetChainClient(c di.ServiceRegistry) *cosmos.Client {
	return di.GetToken(c, ChainClient)
}
