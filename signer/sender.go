package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	optxmgr "github.com/ethereum-optimism/optimism/op-service/txmgr"
)

// EthClient is the L1 client surface Sender needs to build, send, and
// confirm a transaction: nonce and fee suggestion, gas estimation,
// broadcast, and receipt/confirmation polling.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Sender is the direct on-chain Signer's Send side: it builds a dynamic-fee
// transaction for a candidate, signs it with the configured Signer, sends
// it, and blocks until it has the required number of confirmations. It
// satisfies the narrow Send(ctx, txmgr.TxCandidate) (*types.Receipt, error)
// shape both submitter.TxSender and gameview.TxSender (via a one-line
// adapter converting gameview.TxCandidate to txmgr.TxCandidate) expect,
// so it plugs into either without depending on op-service/txmgr's own
// transaction manager.
//
// This is a lighter-weight alternative to gameview.TxManagerSender: it does
// not rebroadcast at a bumped fee if a transaction stalls, the way the real
// txmgr.SimpleTxManager does. Deployments that need that resilience should
// wire a real txmgr.TxManager instead: wrapped in TxManagerSender for
// gameview.TxSender, or as is for submitter.TxSender.
type Sender struct {
	log              log.Logger
	client           EthClient
	signer           Signer
	from             common.Address
	chainID          *big.Int
	numConfirmations uint64
	pollInterval     time.Duration
}

func NewSender(l log.Logger, client EthClient, s Signer, from common.Address, chainID *big.Int, numConfirmations uint64) *Sender {
	return &Sender{
		log: l, client: client, signer: s, from: from, chainID: chainID,
		numConfirmations: numConfirmations,
		pollInterval:     time.Second,
	}
}

// Send builds, signs, and broadcasts candidate, then blocks until its
// receipt has accumulated the configured confirmation depth or ctx is done.
func (s *Sender) Send(ctx context.Context, candidate optxmgr.TxCandidate) (*types.Receipt, error) {
	tx, err := s.buildAndSign(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("signer: building transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("signer: broadcasting transaction %s: %w", tx.Hash(), err)
	}
	s.log.Info("broadcast transaction", "tx_hash", tx.Hash(), "to", candidate.To)

	return s.waitForConfirmations(ctx, tx.Hash())
}

func (s *Sender) buildAndSign(ctx context.Context, candidate optxmgr.TxCandidate) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas tip cap: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	value := candidate.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := candidate.GasLimit
	if gasLimit == 0 {
		estimated, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
			From:      s.from,
			To:        candidate.To,
			Value:     value,
			Data:      candidate.TxData,
			GasFeeCap: feeCap,
			GasTipCap: tip,
		})
		if err != nil {
			return nil, fmt.Errorf("estimating gas: %w", err)
		}
		gasLimit = estimated
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        candidate.To,
		Value:     value,
		Data:      candidate.TxData,
	})
	return s.signer.Sign(ctx, tx)
}

func (s *Sender) waitForConfirmations(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := s.client.TransactionReceipt(ctx, txHash)
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			if err != nil {
				s.log.Warn("polling for receipt", "tx_hash", txHash, "err", err)
				continue
			}

			head, err := s.client.BlockNumber(ctx)
			if err != nil {
				s.log.Warn("polling block number", "err", err)
				continue
			}
			if head < receipt.BlockNumber.Uint64() {
				continue
			}
			if head-receipt.BlockNumber.Uint64()+1 < s.numConfirmations {
				continue
			}
			return receipt, nil
		}
	}
}
