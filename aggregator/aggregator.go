// Package aggregator implements the Aggregator (component G, spec §4.5):
// once a contiguous run of Complete Range requests covers a span at least
// submission_interval wide, it assembles an Aggregation request anchored to
// an L1 checkpoint, verifying the header chain back to that checkpoint.
package aggregator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/store"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

// BootInfo is the ABI-encoded per-range boot information threaded into the
// aggregation stdin (spec §4.5 (2)): output-root pre/post, L1 head, chain
// id, rollup config hash.
type BootInfo struct {
	L1Head           common.Hash
	L2PreRoot        common.Hash
	L2PostRoot       common.Hash
	L2BlockNumber    uint64
	ChainID          uint64
	RollupConfigHash common.Hash
}

// AggregationInput is the assembled stdin for an Aggregation proof request
// (spec §4.5 (2)).
type AggregationInput struct {
	RangeProofs  [][]byte
	BootInfos    []BootInfo
	BridgingL1s  []*types.Header // headers from each boot's l1_head back to the checkpoint, inclusive
	CheckpointL1 succinctTypes.L1Checkpoint
}

// Aggregator is the concrete Aggregator.
type Aggregator struct {
	st                store.Store
	fetcher           *chaindata.Fetcher
	submissionInterval uint64
}

func NewAggregator(st store.Store, fetcher *chaindata.Fetcher, submissionInterval uint64) *Aggregator {
	return &Aggregator{st: st, fetcher: fetcher, submissionInterval: submissionInterval}
}

// ContiguousCompleteSpan finds the longest contiguous run of Complete Range
// requests starting at from, sorted by StartBlock, and returns it plus its
// [A, B) bounds. Returns ok=false if no run of at least
// submissionInterval blocks exists.
func (a *Aggregator) ContiguousCompleteSpan(ctx context.Context, from uint64) (reqs []*succinctTypes.Request, start, end uint64, ok bool) {
	kind := succinctTypes.RequestKindRange
	candidates, err := a.st.ListRequests(ctx, store.Filter{
		Kind:     &kind,
		Statuses: []succinctTypes.RequestStatus{succinctTypes.StatusComplete},
	})
	if err != nil {
		return nil, 0, 0, false
	}

	byStart := make(map[uint64]*succinctTypes.Request, len(candidates))
	for _, r := range candidates {
		byStart[r.StartBlock] = r
	}

	cursor := from
	var run []*succinctTypes.Request
	for {
		r, found := byStart[cursor]
		if !found {
			break
		}
		run = append(run, r)
		cursor = r.EndBlock
	}

	if len(run) == 0 {
		return nil, 0, 0, false
	}
	span := cursor - from
	if span < a.submissionInterval {
		return nil, 0, 0, false
	}
	return run, from, cursor, true
}

// VerifyHeaderChain walks parent_hash from each boot's l1_head back toward
// the checkpoint and confirms it is reached (spec §4.5's header chain
// invariant). headersByHash must contain every header on the path; a
// missing link returns ErrHeaderChainBroken.
func VerifyHeaderChain(l1Head, checkpoint common.Hash, headersByHash map[common.Hash]*types.Header) ([]*types.Header, error) {
	var chain []*types.Header
	cursor := l1Head
	for {
		h, ok := headersByHash[cursor]
		if !ok {
			return nil, succinctTypes.ErrHeaderChainBroken
		}
		chain = append(chain, h)
		if cursor == checkpoint {
			return chain, nil
		}
		if h.ParentHash == (common.Hash{}) {
			return nil, succinctTypes.ErrHeaderChainBroken
		}
		cursor = h.ParentHash
	}
}

// SelectCheckpoint picks the L1 checkpoint block for an aggregation: the
// current L1 head, so checkpointBlockHash(block_no) is called against a
// block recent enough to still be canonical at submission time (spec §4.5
// (1)).
func (a *Aggregator) SelectCheckpoint(ctx context.Context) (succinctTypes.L1Checkpoint, error) {
	header, err := a.fetcher.L1Header(ctx, nil)
	if err != nil {
		return succinctTypes.L1Checkpoint{}, fmt.Errorf("selecting checkpoint: %w", err)
	}
	return succinctTypes.L1Checkpoint{Number: header.Number.Uint64(), Hash: header.Hash()}, nil
}

// Aggregate assembles and enqueues a new Aggregation request from a
// contiguous Complete span (spec §4.5). headersByHash supplies the L1
// headers needed to verify each boot's header chain back to checkpoint;
// callers fetch these via chaindata.Fetcher ahead of calling Aggregate.
func (a *Aggregator) Aggregate(ctx context.Context, span []*succinctTypes.Request, checkpoint succinctTypes.L1Checkpoint, bootL1Heads []common.Hash, headersByHash map[common.Hash]*types.Header) (*succinctTypes.Request, error) {
	if len(span) == 0 {
		return nil, fmt.Errorf("aggregate: empty span")
	}

	for _, l1Head := range bootL1Heads {
		if _, err := VerifyHeaderChain(l1Head, checkpoint.Hash, headersByHash); err != nil {
			return nil, err
		}
	}

	first := span[0]
	for _, r := range span[1:] {
		if !r.VkeyCommitments.Equal(first.VkeyCommitments) {
			return nil, fmt.Errorf("aggregate: range request %d has vkey commitments %+v, want %+v matching the span's first request", r.ID, r.VkeyCommitments, first.VkeyCommitments)
		}
	}

	req := &succinctTypes.Request{
		Kind:              succinctTypes.RequestKindAggregation,
		Mode:              first.Mode,
		StartBlock:        span[0].StartBlock,
		EndBlock:          span[len(span)-1].EndBlock,
		Status:            succinctTypes.StatusUnrequested,
		CheckpointL1Block: &checkpoint,
		VkeyCommitments:   first.VkeyCommitments,
		L1ChainID:         first.L1ChainID,
		L2ChainID:         first.L2ChainID,
	}
	id, err := a.st.CreateRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueuing aggregation request: %w", err)
	}
	req.ID = id
	return req, nil
}
