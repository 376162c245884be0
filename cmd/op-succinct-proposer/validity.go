package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/store"
	"github.com/succinctlabs/op-succinct-go/submitter"
)

// validitySubmitterDriver pops the next relayable aggregation and posts it,
// resolving the outputRoot/l1Block/proverAddr arguments submitter.Submit
// needs from the request and the chain (spec §4.6).
type validitySubmitterDriver struct {
	log     log.Logger
	fetcher *chaindata.Fetcher
	sub     *submitter.Submitter
}

func newValiditySubmitter(l log.Logger, st store.Store, sender submitter.TxSender, ooTx *bindings.OPSuccinctL2OutputOracleTransactor, ooAddr common.Address, fetcher *chaindata.Fetcher, m metrics.Metricer) *validitySubmitterDriver {
	return &validitySubmitterDriver{
		log:     l,
		fetcher: fetcher,
		sub: submitter.NewSubmitter(l, st, sender, ooTx, ooAddr, submitter.Config{
			NumConfirmations: 1,
			ConfirmTimeout:   5 * time.Minute,
		}, m),
	}
}

func (d *validitySubmitterDriver) tick(ctx context.Context) {
	req, err := d.sub.PopNextRelayable(ctx)
	if err != nil {
		d.log.Warn("listing relayable aggregation requests", "err", err)
		return
	}
	if req == nil {
		return
	}

	outputRoot, err := d.fetcher.L2OutputRoot(ctx, req.EndBlock)
	if err != nil {
		d.log.Warn("computing output root for relay", "request", req.ID, "err", err)
		return
	}

	var l1Block uint64
	if req.CheckpointL1Block != nil {
		l1Block = req.CheckpointL1Block.Number
	}
	var proverAddr [20]byte
	if req.ProverAddress != nil {
		proverAddr = *req.ProverAddress
	}

	if err := d.sub.Submit(ctx, req, outputRoot, l1Block, proverAddr); err != nil {
		d.log.Error("submitting aggregation proof", "request", req.ID, "err", err)
	}
}
