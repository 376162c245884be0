package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/aggregator"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

// aggregationDriver selects an L1 checkpoint once per span and holds it
// until that span's constituent range proofs complete, then aggregates.
// aggregator.SelectCheckpoint fetches the current L1 head; VerifyHeaderChain
// only succeeds if checkpoint is an ancestor of every boot's recorded
// L1HeadBlock, so the checkpoint has to be picked before those ranges are
// even proven, not after, since L1 only moves forward in the meantime.
type aggregationDriver struct {
	log     log.Logger
	agg     *aggregator.Aggregator
	fetcher *chaindata.Fetcher

	nextStart  uint64
	checkpoint *succinctTypes.L1Checkpoint
}

func newAggregationDriver(l log.Logger, agg *aggregator.Aggregator, fetcher *chaindata.Fetcher, startBlock uint64) *aggregationDriver {
	return &aggregationDriver{log: l, agg: agg, fetcher: fetcher, nextStart: startBlock}
}

// tick selects a checkpoint for the span currently building if none is
// pending, then attempts to aggregate the span starting at nextStart.
// Failure just logs and retries on the next tick.
func (d *aggregationDriver) tick(ctx context.Context) {
	if d.checkpoint == nil {
		cp, err := d.agg.SelectCheckpoint(ctx)
		if err != nil {
			d.log.Warn("selecting aggregation checkpoint", "err", err)
			return
		}
		d.checkpoint = &cp
		d.log.Info("selected aggregation checkpoint", "l1_block", cp.Number)
	}

	span, start, end, ok := d.agg.ContiguousCompleteSpan(ctx, d.nextStart)
	if !ok {
		return
	}

	headersByHash, bootHeads, err := d.buildHeaderChain(ctx, span, *d.checkpoint)
	if err != nil {
		d.log.Warn("building header chain for aggregation", "start", start, "end", end, "err", err)
		return
	}

	req, err := d.agg.Aggregate(ctx, span, *d.checkpoint, bootHeads, headersByHash)
	if err != nil {
		d.log.Warn("aggregating span", "start", start, "end", end, "err", err)
		return
	}

	d.log.Info("created aggregation request", "request", req.ID, "start", start, "end", end, "checkpoint", d.checkpoint.Number)
	d.nextStart = end
	d.checkpoint = nil
}

// maxCheckpointWalk bounds how many L1 blocks buildHeaderChain will fetch
// between a boot's L1 head and the checkpoint, so a misconfigured or stale
// checkpoint can't turn one tick into an unbounded backfill.
const maxCheckpointWalk = 100_000

// buildHeaderChain resolves each range request's recorded L1HeadBlock (a
// block number) to a header, then fetches every header between checkpoint
// and the furthest boot head by number, keyed by hash the way
// aggregator.VerifyHeaderChain expects to walk them via ParentHash.
func (d *aggregationDriver) buildHeaderChain(ctx context.Context, span []*succinctTypes.Request, checkpoint succinctTypes.L1Checkpoint) (map[common.Hash]*gethtypes.Header, []common.Hash, error) {
	bootHeads := make([]common.Hash, 0, len(span))
	maxNumber := checkpoint.Number

	for _, r := range span {
		if r.L1HeadBlock == nil {
			return nil, nil, fmt.Errorf("request %d has no recorded L1 head block", r.ID)
		}
		header, err := d.fetcher.L1Header(ctx, new(big.Int).SetUint64(*r.L1HeadBlock))
		if err != nil {
			return nil, nil, fmt.Errorf("fetching boot L1 head %d for request %d: %w", *r.L1HeadBlock, r.ID, err)
		}
		bootHeads = append(bootHeads, header.Hash())
		if header.Number.Uint64() > maxNumber {
			maxNumber = header.Number.Uint64()
		}
	}

	if maxNumber-checkpoint.Number > maxCheckpointWalk {
		return nil, nil, fmt.Errorf("checkpoint %d is too far behind boot head %d (> %d blocks)", checkpoint.Number, maxNumber, maxCheckpointWalk)
	}

	headersByHash := make(map[common.Hash]*gethtypes.Header, maxNumber-checkpoint.Number+1)
	for n := checkpoint.Number; n <= maxNumber; n++ {
		header, err := d.fetcher.L1Header(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, nil, fmt.Errorf("fetching L1 header %d: %w", n, err)
		}
		headersByHash[header.Hash()] = header
	}

	return headersByHash, bootHeads, nil
}
