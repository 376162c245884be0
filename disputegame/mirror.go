// Package disputegame implements the Dispute Game Mirror (component I, spec
// §4.7): a local, indexed copy of on-chain dispute games, kept current via
// sync_state and used by the proposer/challenger loops to compute the
// canonical head without re-querying the factory on every decision.
package disputegame

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/types"
)

// Outcome classifies what sync_state did with one factory-indexed game
// (spec §4.7).
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeAlreadyExists
	OutcomeDropped
)

// SyncResult reports what sync_state did to a single game, for logging and
// metrics.
type SyncResult struct {
	Index   types.GameIndex
	Outcome Outcome
	Reason  string // set when Outcome == OutcomeDropped
}

// GameCaller is the per-proxy read surface the mirror needs from a single
// FaultDisputeGame instance.
type GameCaller interface {
	L2BlockNumber(opts *bind.CallOpts) (*big.Int, error)
	RootClaim(opts *bind.CallOpts) ([32]byte, error)
	Status(opts *bind.CallOpts) (bindings.GameStatus, error)
	ClaimData(opts *bind.CallOpts) (bindings.ClaimData, error)
	AggregationVkey(opts *bind.CallOpts) ([32]byte, error)
	RangeVkeyCommitment(opts *bind.CallOpts) ([32]byte, error)
	RollupConfigHash(opts *bind.CallOpts) ([32]byte, error)
}

// GameCallerFactory constructs a GameCaller for a given proxy address,
// letting the mirror stay decoupled from bind.ContractCaller wiring in
// tests.
type GameCallerFactory func(address common.Address) (GameCaller, error)

// FactoryCaller is the DisputeGameFactory read surface the mirror needs,
// matching *bindings.DisputeGameFactoryCaller's method set. Kept as an
// interface so tests can fake the factory without a real bind.ContractCaller.
type FactoryCaller interface {
	GameCount(opts *bind.CallOpts) (*big.Int, error)
	GameAtIndex(opts *bind.CallOpts, index *big.Int) (bindings.GameAtIndexResult, error)
}

// Mirror is the concrete Dispute Game Mirror.
type Mirror struct {
	log     log.Logger
	factory FactoryCaller
	newGame GameCallerFactory
	fetcher *chaindata.Fetcher

	want types.VkeyCommitments

	cursor types.GameIndex
	games  map[types.GameIndex]*types.Game

	anchorIndex  types.GameIndex
	canonicalHead types.GameIndex
}

// NewMirror constructs an empty Mirror anchored at index 0. Callers
// populate the anchor game via SeedFromLatestValidProposal or by replaying a
// backup before the first SyncState call.
func NewMirror(l log.Logger, factory FactoryCaller, newGame GameCallerFactory, fetcher *chaindata.Fetcher, want types.VkeyCommitments) *Mirror {
	return &Mirror{
		log:     l,
		factory: factory,
		newGame: newGame,
		fetcher: fetcher,
		want:    want,
		games:   make(map[types.GameIndex]*types.Game),
	}
}

// Games exposes the current in-memory mirror, keyed by factory index. Callers
// must not mutate the returned map.
func (m *Mirror) Games() map[types.GameIndex]*types.Game {
	return m.games
}

// CanonicalHead returns the index of the game currently recognized as the
// canonical head.
func (m *Mirror) CanonicalHead() types.GameIndex {
	return m.canonicalHead
}

// AnchorIndex returns the index of the currently anchored (finalized) game.
func (m *Mirror) AnchorIndex() types.GameIndex {
	return m.anchorIndex
}

// SetAnchor sets the anchor game index directly — used when seeding from a
// backup or from SeedFromLatestValidProposal.
func (m *Mirror) SetAnchor(index types.GameIndex) {
	m.anchorIndex = index
	m.canonicalHead = index
}

// SyncState implements spec §4.7's sync_state: walk every new factory index
// since the cursor, classify it, and recompute the canonical head.
func (m *Mirror) SyncState(ctx context.Context) ([]SyncResult, error) {
	count, err := m.factory.GameCount(nil)
	if err != nil {
		return nil, fmt.Errorf("sync_state: reading gameCount: %w", err)
	}
	top := types.GameIndex(count.Uint64())

	var results []SyncResult
	for i := m.cursor; i < top; i++ {
		result, err := m.ingest(ctx, i)
		if err != nil {
			return results, fmt.Errorf("sync_state: ingesting game %d: %w", i, err)
		}
		results = append(results, result)
	}
	m.cursor = top

	m.recomputeCanonicalHead()
	return results, nil
}

// ingest fetches and classifies the game at index i (spec §4.7's
// AlreadyExists/Dropped/Added classification).
func (m *Mirror) ingest(ctx context.Context, i types.GameIndex) (SyncResult, error) {
	if _, exists := m.games[i]; exists {
		return SyncResult{Index: i, Outcome: OutcomeAlreadyExists}, nil
	}

	entry, err := m.factory.GameAtIndex(nil, new(big.Int).SetUint64(uint64(i)))
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading gameAtIndex: %w", err)
	}

	gc, err := m.newGame(entry.Proxy)
	if err != nil {
		return SyncResult{}, fmt.Errorf("constructing game caller for %s: %w", entry.Proxy, err)
	}

	aggVkey, err := gc.AggregationVkey(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading aggregationVkey: %w", err)
	}
	rangeVkey, err := gc.RangeVkeyCommitment(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading rangeVkeyCommitment: %w", err)
	}
	rollupHash, err := gc.RollupConfigHash(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading rollupConfigHash: %w", err)
	}
	commitments := types.VkeyCommitments{
		RangeVkeyCommitment: rangeVkey,
		AggregationVkeyHash: aggVkey,
		RollupConfigHash:    rollupHash,
	}
	if !commitments.Equal(m.want) {
		m.log.Warn("dropping game with incompatible vkey commitments", "index", i, "proxy", entry.Proxy)
		return SyncResult{Index: i, Outcome: OutcomeDropped, Reason: "incompatible vkey commitments"}, nil
	}

	l2Block, err := gc.L2BlockNumber(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading l2BlockNumber: %w", err)
	}
	rootClaim, err := gc.RootClaim(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading rootClaim: %w", err)
	}

	if m.fetcher != nil {
		computed, err := m.fetcher.L2OutputRoot(ctx, l2Block.Uint64())
		if err != nil {
			return SyncResult{}, fmt.Errorf("computing output root for block %d: %w", l2Block.Uint64(), err)
		}
		if computed != common.Hash(rootClaim) {
			m.log.Warn("dropping game with root claim mismatch", "index", i, "proxy", entry.Proxy, "l2_block", l2Block)
			return SyncResult{Index: i, Outcome: OutcomeDropped, Reason: "root claim mismatch"}, nil
		}
	}

	status, err := gc.Status(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading status: %w", err)
	}
	claim, err := gc.ClaimData(nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading claimData: %w", err)
	}

	game := &types.Game{
		Index:           i,
		Address:         entry.Proxy,
		ParentIndex:     claim.ParentIndex,
		L2Block:         l2Block.Uint64(),
		Status:          status,
		ProposalStatus:  claim.Status,
		RootClaim:       common.Hash(rootClaim),
		Deadline:        claim.Deadline,
		VkeyCommitments: commitments,
	}
	if !game.IsGenesis() {
		if _, ok := m.games[types.GameIndex(game.ParentIndex)]; !ok && types.GameIndex(game.ParentIndex) != m.anchorIndex {
			m.log.Warn("dropping game with orphaned parent", "index", i, "parent_index", game.ParentIndex)
			return SyncResult{Index: i, Outcome: OutcomeDropped, Reason: "orphaned parent"}, nil
		}
	}

	m.games[i] = game
	return SyncResult{Index: i, Outcome: OutcomeAdded}, nil
}

// recomputeCanonicalHead finds the game with the highest L2Block reachable
// from the anchor via valid parent edges (spec §4.7). Games not connected to
// the anchor are ignored, matching the orphaned-parent guard in ingest.
func (m *Mirror) recomputeCanonicalHead() {
	best := m.anchorIndex
	var bestBlock uint64
	if g, ok := m.games[m.anchorIndex]; ok {
		bestBlock = g.L2Block
	}

	for idx, g := range m.games {
		if !m.reachesAnchor(idx) {
			continue
		}
		if g.L2Block > bestBlock {
			best = idx
			bestBlock = g.L2Block
		}
	}
	m.canonicalHead = best
}

// IsCanonicalAncestor reports whether idx is our canonical anchor or chains
// back to it via parent edges, the test the Proposer Loop uses to decide
// whether a Challenged game is worth defending (spec §4.8 step 3: "whose
// parent_index is our canonical ancestor").
func (m *Mirror) IsCanonicalAncestor(idx types.GameIndex) bool {
	return m.reachesAnchor(idx)
}

// reachesAnchor walks parent edges from idx and reports whether they lead
// back to the current anchor (or idx is itself the anchor).
func (m *Mirror) reachesAnchor(idx types.GameIndex) bool {
	cursor := idx
	visited := make(map[types.GameIndex]bool)
	for {
		if cursor == m.anchorIndex {
			return true
		}
		if visited[cursor] {
			return false // cycle, should not happen but don't hang
		}
		visited[cursor] = true

		g, ok := m.games[cursor]
		if !ok {
			return false
		}
		if g.IsGenesis() {
			return false
		}
		cursor = types.GameIndex(g.ParentIndex)
	}
}

// Snapshot captures the mirror's current state as a types.Backup, for
// periodic persistence by backup.Store.Save (spec §4.10 step "Save").
func (m *Mirror) Snapshot() *types.Backup {
	games := make([]types.Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, *g)
	}
	cursor := uint64(m.cursor)
	anchor := m.anchorIndex
	return &types.Backup{
		Version:         types.BackupVersion,
		Cursor:          &cursor,
		Games:           games,
		AnchorGameIndex: &anchor,
	}
}

// RestoreBackup seeds the mirror from a previously loaded, already-validated
// backup (spec §4.10 step "Load"), skipping re-derivation of every game from
// chain. The next SyncState call resumes from the restored cursor rather
// than replaying the whole factory.
func (m *Mirror) RestoreBackup(b *types.Backup) {
	m.games = make(map[types.GameIndex]*types.Game, len(b.Games))
	for i := range b.Games {
		g := b.Games[i]
		m.games[g.Index] = &g
	}
	if b.Cursor != nil {
		m.cursor = types.GameIndex(*b.Cursor)
	}
	if b.AnchorGameIndex != nil {
		m.anchorIndex = *b.AnchorGameIndex
	}
	m.recomputeCanonicalHead()
}

// LatestValidProposalFinder is the read surface SeedFromLatestValidProposal
// needs to scan games backward from the latest factory index, grounded on
// original_source/fault_proof/src/lib.rs's get_latest_valid_proposal.
type LatestValidProposalFinder struct {
	Factory FactoryCaller
	NewGame GameCallerFactory
	Fetcher *chaindata.Fetcher
}

// SeedFromLatestValidProposal scans games backward from the latest factory
// index until it finds one whose root claim matches the locally computed
// output root at its l2_block, and returns its index and l2_block. Returns
// ok=false if no games exist or none validate (spec §4.7 seeding, mirrors
// get_latest_valid_proposal's backward linear scan).
func (f *LatestValidProposalFinder) SeedFromLatestValidProposal(ctx context.Context) (index types.GameIndex, l2Block uint64, ok bool, err error) {
	count, err := f.Factory.GameCount(nil)
	if err != nil {
		return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: reading gameCount: %w", err)
	}
	if count.Sign() == 0 {
		return 0, 0, false, nil
	}

	for i := count.Uint64() - 1; ; i-- {
		entry, err := f.Factory.GameAtIndex(nil, new(big.Int).SetUint64(i))
		if err != nil {
			return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: reading gameAtIndex %d: %w", i, err)
		}
		gc, err := f.NewGame(entry.Proxy)
		if err != nil {
			return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: constructing game caller: %w", err)
		}
		block, err := gc.L2BlockNumber(nil)
		if err != nil {
			return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: reading l2BlockNumber: %w", err)
		}
		claim, err := gc.RootClaim(nil)
		if err != nil {
			return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: reading rootClaim: %w", err)
		}
		computed, err := f.Fetcher.L2OutputRoot(ctx, block.Uint64())
		if err != nil {
			return 0, 0, false, fmt.Errorf("seed_from_latest_valid_proposal: computing output root for block %d: %w", block.Uint64(), err)
		}
		if computed == common.Hash(claim) {
			return types.GameIndex(i), block.Uint64(), true, nil
		}
		if i == 0 {
			return 0, 0, false, nil
		}
	}
}
