package pipeline

import (
	"context"

	"github.com/succinctlabs/op-succinct-go/types"
)

// NoopExecutor reports zero cycle/gas usage for every request, never
// tripping splitRequest's resource-limit check. The zkVM dry-execution step
// itself is zkVM internals (out of scope, same as prover's network wire
// protocol), so this stands in for a real Executor the way prover.MockClient
// stands in for a real network transport.
type NoopExecutor struct{}

func NewNoopExecutor() *NoopExecutor { return &NoopExecutor{} }

func (NoopExecutor) Execute(context.Context, *types.Request, []byte) (types.ExecutionStats, error) {
	return types.ExecutionStats{}, nil
}

var _ Executor = NoopExecutor{}
