package gameview

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"
)

// TxManagerSender adapts an op-service/txmgr.TxManager to TxSender,
// translating this package's TxCandidate (deliberately decoupled from
// txmgr's full surface, see TxCandidate's doc comment) into txmgr's own
// candidate type before handing it to the real transaction manager.
type TxManagerSender struct {
	TxMgr txmgr.TxManager
}

func (s TxManagerSender) Send(ctx context.Context, candidate TxCandidate) (*types.Receipt, error) {
	return s.TxMgr.Send(ctx, txmgr.TxCandidate{
		TxData: candidate.TxData,
		To:     candidate.To,
		Value:  candidate.Value,
	})
}

var _ TxSender = TxManagerSender{}
