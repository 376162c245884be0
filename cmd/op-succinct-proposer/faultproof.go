package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	optxmgr "github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/succinctlabs/op-succinct-go/backup"
	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/signer"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

// txSenderAdapter adapts a *signer.Sender (which already speaks
// op-service/txmgr.TxCandidate) to gameview.TxSender, whose TxCandidate is
// deliberately its own local type (see gameview.TxCandidate's doc comment).
type txSenderAdapter struct {
	sender *signer.Sender
}

func newTxSenderAdapter(s *signer.Sender) txSenderAdapter {
	return txSenderAdapter{sender: s}
}

func (a txSenderAdapter) Send(ctx context.Context, candidate gameview.TxCandidate) (*types.Receipt, error) {
	return a.sender.Send(ctx, optxmgr.TxCandidate{
		TxData: candidate.TxData,
		To:     candidate.To,
		Value:  candidate.Value,
	})
}

var _ gameview.TxSender = txSenderAdapter{}

// readCommitments reads the vkey commitments the mirror should accept from
// the currently configured game implementation contract, the same values
// every freshly created game of this type carries (spec §4.7's "vkey
// commitments this deployment accepts").
func readCommitments(factory *bindings.DisputeGameFactoryCaller, gameType uint32, caller bind.ContractCaller) (succinctTypes.VkeyCommitments, error) {
	implAddr, err := factory.GameImpls(nil, gameType)
	if err != nil {
		return succinctTypes.VkeyCommitments{}, fmt.Errorf("reading game implementation address: %w", err)
	}
	impl, err := bindings.NewFaultDisputeGameCaller(implAddr, caller)
	if err != nil {
		return succinctTypes.VkeyCommitments{}, fmt.Errorf("building game implementation caller: %w", err)
	}

	aggVkey, err := impl.AggregationVkey(nil)
	if err != nil {
		return succinctTypes.VkeyCommitments{}, fmt.Errorf("reading aggregationVkey: %w", err)
	}
	rangeVkey, err := impl.RangeVkeyCommitment(nil)
	if err != nil {
		return succinctTypes.VkeyCommitments{}, fmt.Errorf("reading rangeVkeyCommitment: %w", err)
	}
	rollupHash, err := impl.RollupConfigHash(nil)
	if err != nil {
		return succinctTypes.VkeyCommitments{}, fmt.Errorf("reading rollupConfigHash: %w", err)
	}

	return succinctTypes.VkeyCommitments{
		RangeVkeyCommitment: rangeVkey,
		AggregationVkeyHash: aggVkey,
		RollupConfigHash:    rollupHash,
	}, nil
}

// seedMirror restores mirror from the backup file if one validates, falling
// back to disputegame.LatestValidProposalFinder's backward chain scan, and
// returns the backup.Store to reuse for subsequent saves (nil if backups are
// disabled).
func seedMirror(
	ctx context.Context,
	l log.Logger,
	mirror *disputegame.Mirror,
	backupPath string,
	factory disputegame.FactoryCaller,
	newGame disputegame.GameCallerFactory,
	fetcher *chaindata.Fetcher,
) *backup.Store {
	var store *backup.Store
	if backupPath != "" {
		store = backup.New(l, backupPath)
		if b, err := store.Load(); err != nil {
			l.Warn("loading backup failed, falling back to chain scan", "err", err)
		} else if b != nil {
			mirror.RestoreBackup(b)
			l.Info("seeded mirror from backup", "anchor", mirror.AnchorIndex())
			return store
		}
	}

	finder := &disputegame.LatestValidProposalFinder{Factory: factory, NewGame: newGame, Fetcher: fetcher}
	idx, l2Block, ok, err := finder.SeedFromLatestValidProposal(ctx)
	if err != nil {
		l.Warn("seeding from latest valid proposal failed, starting from genesis anchor", "err", err)
	} else if ok {
		mirror.SetAnchor(idx)
		l.Info("seeded mirror from latest valid proposal", "anchor", idx, "l2_block", l2Block)
	}
	return store
}

// saveBackup snapshots mirror and persists it, a no-op if backups are
// disabled.
func saveBackup(store *backup.Store, mirror *disputegame.Mirror) error {
	if store == nil {
		return nil
	}
	return store.Save(mirror.Snapshot())
}
