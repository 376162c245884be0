// Package submitter implements the Output Submitter (component H, spec
// §4.6): it pops Complete Aggregation requests and posts them to the L2
// Output Oracle, advancing them to Relayed on confirmation.
//
// The polling/propose/confirm shape is adapted from the teacher's
// L2OutputSubmitter.loopL2OO/proposeOutput/sendTransaction in
// op-proposer/proposer/driver.go, generalized from "poll the L2OO for the
// next block" to "pop the next Complete Aggregation request from the
// store".
package submitter

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/signer"
	"github.com/succinctlabs/op-succinct-go/store"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

// Config bounds the submitter's confirmation wait, mirroring driver.go's
// NUM_CONFIRMATIONS/timeout contract (spec §4.6).
type Config struct {
	NumConfirmations uint64
	ConfirmTimeout   time.Duration
}

// TxSender is the slice of txmgr.TxManager the submitter needs: build and
// send a candidate, block until it confirms or the context times out. Kept
// narrow rather than depending on the full op-service/txmgr.TxManager
// interface, so a test double only has to implement the one method this
// package actually calls.
type TxSender interface {
	Send(ctx context.Context, candidate txmgr.TxCandidate) (*types.Receipt, error)
}

// Submitter is the Output Submitter.
type Submitter struct {
	log    log.Logger
	st     store.Store
	txmgr  TxSender
	oo     *bindings.OPSuccinctL2OutputOracleTransactor
	ooAddr common.Address
	cfg    Config
	m      metrics.Metricer

	mu   sync.Mutex
	fees map[succinctTypes.RequestID]*signer.FeeAccount
}

func NewSubmitter(l log.Logger, st store.Store, tm TxSender, oo *bindings.OPSuccinctL2OutputOracleTransactor, ooAddr common.Address, cfg Config, m metrics.Metricer) *Submitter {
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &Submitter{
		log: l, st: st, txmgr: tm, oo: oo, ooAddr: ooAddr, cfg: cfg, m: m,
		fees: make(map[succinctTypes.RequestID]*signer.FeeAccount),
	}
}

// feeAccountFor returns the running FeeAccount for req, creating one on
// first use. The account keeps accumulating across reverted retries of the
// same request; Submit drops it once it has attempted the Relayed status
// write.
func (s *Submitter) feeAccountFor(id succinctTypes.RequestID) *signer.FeeAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	fa, ok := s.fees[id]
	if !ok {
		fa = signer.NewFeeAccount()
		s.fees[id] = fa
	}
	return fa
}

// PopNextRelayable returns the oldest Complete Aggregation request ready to
// submit, or nil if none is ready. Per the Open Question decision recorded
// in DESIGN.md, a Mock-mode request is never returned here — the Output
// Submitter refuses to post mock proofs on-chain.
func (s *Submitter) PopNextRelayable(ctx context.Context) (*succinctTypes.Request, error) {
	kind := succinctTypes.RequestKindAggregation
	reqs, err := s.st.ListRequests(ctx, store.Filter{
		Kind:     &kind,
		Statuses: []succinctTypes.RequestStatus{succinctTypes.StatusComplete},
	})
	if err != nil {
		return nil, fmt.Errorf("listing relayable requests: %w", err)
	}
	for _, r := range reqs {
		if r.Mode == succinctTypes.RequestModeMock {
			continue
		}
		return r, nil
	}
	return nil, nil
}

// Submit builds and sends the proposeL2Output transaction for req (spec
// §4.6): `proposeL2Output(output_root, l2_block, l1_block, proof_bytes,
// prover_addr)`. On a confirmed, successful receipt, req advances to
// Relayed; on timeout or revert, req is left Complete so the next tick
// retries it.
func (s *Submitter) Submit(ctx context.Context, req *succinctTypes.Request, outputRoot [32]byte, l1Block uint64, proverAddr [20]byte) error {
	if req.Kind != succinctTypes.RequestKindAggregation {
		return fmt.Errorf("submit: request %d is not an aggregation", req.ID)
	}
	if req.Mode == succinctTypes.RequestModeMock {
		return fmt.Errorf("submit: refusing to post mock-mode request %d on-chain", req.ID)
	}

	data, err := s.oo.PackProposeL2Output(outputRoot, new(big.Int).SetUint64(req.EndBlock), new(big.Int).SetUint64(l1Block), req.Artifact, proverAddr)
	if err != nil {
		return fmt.Errorf("packing proposeL2Output: %w", err)
	}

	cCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := s.txmgr.Send(cCtx, txmgr.TxCandidate{TxData: data, To: &s.ooAddr})
	if err != nil {
		s.log.Warn("proposeL2Output submission failed, retrying next tick", "request", req.ID, "err", err)
		return nil
	}

	fa := s.feeAccountFor(req.ID)
	fa.RecordIncluded(receipt, nil)

	if receipt.Status == types.ReceiptStatusFailed {
		s.log.Error("proposeL2Output reverted, retrying next tick", "request", req.ID, "tx_hash", receipt.TxHash)
		return nil
	}

	l1Fees, txFees, totalTxs, totalGas := fa.Totals()
	relayHash := receipt.TxHash
	err = s.st.UpdateStatus(ctx, req.ID, succinctTypes.StatusComplete, func(r *succinctTypes.Request) {
		r.Status = succinctTypes.StatusRelayed
		r.RelayTxHash = &relayHash
		r.TotalL1Fees = l1Fees
		r.TotalTxFees = txFees
		r.TotalTxs = totalTxs
		r.TotalGas = totalGas
	})
	s.mu.Lock()
	delete(s.fees, req.ID)
	s.mu.Unlock()
	if err == nil {
		s.m.RecordRequestStatus(req.Kind.String(), succinctTypes.StatusRelayed.String())
		s.m.RecordRequestDuration(req.Kind.String(), succinctTypes.StatusRelayed.String(), time.Since(req.Timing.CreatedAt).Seconds())
	}
	return err
}
