// Package proposer implements the Proposer Loop (component J, spec §4.8):
// game creation, defense of challenged games on our canonical chain,
// resolution of settled games past their deadline, and bond claim, via the shared
// gameview.Runner/Policy split.
package proposer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/store"
	"github.com/succinctlabs/op-succinct-go/types"
)

// ChainData is the chaindata.Fetcher surface the proposer needs: the root
// claim for a target block, the safe L2 head ceiling that gates game
// creation, and the current L1 head used as an aggregation checkpoint.
// Narrowed to an interface, as elsewhere in this module, so tests don't need
// a live L1/L2/rollup RPC stack — *chaindata.Fetcher satisfies this
// structurally.
type ChainData interface {
	L2OutputRoot(ctx context.Context, block uint64) (common.Hash, error)
	SafeL2Head(ctx context.Context) (uint64, error)
	L1Header(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// Config bundles the Proposer Loop's tunables (spec §4.8, §6.4, and the
// fast-finality supplement of SPEC_FULL.md §7).
type Config struct {
	GameType          uint32
	ProposalInterval  uint64
	MaxConcurrentDefenseTasks int
	FinalityDelay     time.Duration
	OurAddress        common.Address

	// FastFinality gates game creation on an upfront proof covering the
	// candidate range rather than creating the game unchallenged and
	// defending it later (spec.md §4.8's fast-finality mode).
	FastFinality              bool
	FastFinalityProvingLimit  int
}

// BondReader is the DisputeGameFactory read surface the proposer needs
// beyond disputegame.FactoryCaller: the init bond to attach to a create()
// call. Narrowed the same way disputegame.FactoryCaller is.
type BondReader interface {
	InitBonds(opts *bind.CallOpts, gameType uint32) (*big.Int, error)
}

// pendingProof tracks one in-flight aggregation request this package created,
// whether for defending a Challenged game or for an upfront fast-finality
// proof ahead of game creation.
type pendingProof struct {
	reqID      types.RequestID
	startBlock uint64
	endBlock   uint64
}

// Policy implements gameview.Policy for the proposer role.
type Policy struct {
	log     log.Logger
	st      store.Store
	fetcher ChainData

	factoryAddr   common.Address
	factoryTx     *bindings.DisputeGameFactoryTransactor
	bonds         BondReader
	gameTx        *bindings.FaultDisputeGameTransactor
	sender        gameview.TxSender
	m             metrics.Metricer

	cfg Config

	l1ChainID, l2ChainID uint64
	commitments          types.VkeyCommitments

	defenseTasks map[types.GameIndex]pendingProof

	fastFinalitySem chan struct{}
	pendingCreation *pendingProof

	// pendingUpfrontProofs holds fast-finality proofs generated before their
	// game existed on-chain, keyed by target L2 block since the game's
	// index/address are only known once sync_state ingests it next tick.
	pendingUpfrontProofs map[uint64][]byte
}

func NewPolicy(
	l log.Logger,
	st store.Store,
	fetcher ChainData,
	factoryAddr common.Address,
	factoryTx *bindings.DisputeGameFactoryTransactor,
	bonds BondReader,
	gameTx *bindings.FaultDisputeGameTransactor,
	sender gameview.TxSender,
	l1ChainID, l2ChainID uint64,
	commitments types.VkeyCommitments,
	cfg Config,
	m metrics.Metricer,
) *Policy {
	limit := cfg.FastFinalityProvingLimit
	if limit <= 0 {
		limit = 1
	}
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &Policy{
		log: l, st: st, fetcher: fetcher,
		factoryAddr: factoryAddr, factoryTx: factoryTx, bonds: bonds,
		gameTx: gameTx, sender: sender, m: m,
		cfg: cfg,
		l1ChainID: l1ChainID, l2ChainID: l2ChainID,
		commitments: commitments,
		defenseTasks: make(map[types.GameIndex]pendingProof),
		fastFinalitySem: make(chan struct{}, limit),
		pendingUpfrontProofs: make(map[uint64][]byte),
	}
}

// ShouldResolve reports whether g is past its deadline and settled in the
// proposer's favor (spec §4.8 step 4: valid-proof-provided or unchallenged).
// It does not check who created g.
func (p *Policy) ShouldResolve(g *types.Game, now time.Time) bool {
	if !now.After(time.Unix(int64(g.Deadline), 0)) {
		return false
	}
	switch g.ProposalStatus {
	case bindings.ProposalStatusUnchallenged,
		bindings.ProposalStatusUnchallengedAndValidProofProvided,
		bindings.ProposalStatusChallengedAndValidProofProvided:
		return true
	default:
		return false
	}
}

// WeWon reports whether g resolved in the proposer's favor.
func (p *Policy) WeWon(g *types.Game) bool {
	return g.Status == bindings.GameStatusDefenderWins
}

// AdvancesAnchor is true for the proposer (spec §4.8 step 6).
func (p *Policy) AdvancesAnchor() bool { return true }

// Act runs game creation and defense, spec §4.8 steps 2-3.
func (p *Policy) Act(ctx context.Context, mirror *disputegame.Mirror) error {
	if err := p.submitPendingUpfrontProofs(ctx, mirror); err != nil {
		p.log.Error("submitting upfront proofs failed", "err", err)
	}
	if err := p.spawnDefenseTasks(ctx, mirror); err != nil {
		p.log.Error("spawning defense tasks failed", "err", err)
	}
	if err := p.advanceDefenseTasks(ctx, mirror); err != nil {
		p.log.Error("advancing defense tasks failed", "err", err)
	}

	if p.cfg.FastFinality {
		return p.actFastFinality(ctx, mirror)
	}
	return p.actNormal(ctx, mirror)
}

func (p *Policy) canonicalBlock(mirror *disputegame.Mirror) (index types.GameIndex, block uint64) {
	index = mirror.CanonicalHead()
	if g, ok := mirror.Games()[index]; ok {
		block = g.L2Block
	}
	return index, block
}

// actNormal creates a new game directly once the safe head clears the
// proposal interval past the canonical head (spec §4.8 step 2).
func (p *Policy) actNormal(ctx context.Context, mirror *disputegame.Mirror) error {
	safeHead, err := p.fetcher.SafeL2Head(ctx)
	if err != nil {
		return fmt.Errorf("proposer: fetching safe l2 head: %w", err)
	}
	anchorIdx, anchorBlock := p.canonicalBlock(mirror)
	if safeHead <= anchorBlock+p.cfg.ProposalInterval {
		return nil
	}
	return p.createGame(ctx, mirror, anchorIdx, safeHead, nil)
}

// actFastFinality proves the candidate range upfront, subject to
// FastFinalityProvingLimit, before creating the game (spec.md §4.8
// fast-finality mode).
func (p *Policy) actFastFinality(ctx context.Context, mirror *disputegame.Mirror) error {
	if p.pendingCreation != nil {
		req, err := p.st.GetRequest(ctx, p.pendingCreation.reqID)
		if err != nil {
			return fmt.Errorf("proposer: fetching upfront proof %d: %w", p.pendingCreation.reqID, err)
		}
		if req.Status != types.StatusComplete {
			return nil // still proving, nothing else to do this tick
		}
		pending := *p.pendingCreation
		p.pendingCreation = nil
		<-p.fastFinalitySem
		return p.createGame(ctx, mirror, mirror.CanonicalHead(), pending.endBlock, req.Artifact)
	}

	safeHead, err := p.fetcher.SafeL2Head(ctx)
	if err != nil {
		return fmt.Errorf("proposer: fetching safe l2 head: %w", err)
	}
	_, anchorBlock := p.canonicalBlock(mirror)
	if safeHead <= anchorBlock+p.cfg.ProposalInterval {
		return nil
	}

	select {
	case p.fastFinalitySem <- struct{}{}:
	default:
		return nil // at FastFinalityProvingLimit, try again next tick
	}

	req, err := p.planProof(ctx, anchorBlock, safeHead)
	if err != nil {
		<-p.fastFinalitySem
		return fmt.Errorf("proposer: planning upfront proof: %w", err)
	}
	p.pendingCreation = &pendingProof{reqID: req.ID, startBlock: anchorBlock, endBlock: safeHead}
	return nil
}

// createGame sends the factory create() call extending from parentIndex to
// targetBlock (spec §4.8 step 2). parentIndex is treated as the genesis
// sentinel unless a backing game actually exists for it (an empty mirror's
// CanonicalHead defaults to index 0 with no game behind it). When
// proofBytes is non-nil (fast-finality mode), the proof is stashed by target
// block and submitPendingUpfrontProofs sends prove() on a later tick, once
// sync_state has ingested the new game, rather than waiting on a defense
// task.
func (p *Policy) createGame(ctx context.Context, mirror *disputegame.Mirror, parentIndex types.GameIndex, targetBlock uint64, proofBytes []byte) error {
	rootClaim, err := p.fetcher.L2OutputRoot(ctx, targetBlock)
	if err != nil {
		return fmt.Errorf("proposer: computing root claim for block %d: %w", targetBlock, err)
	}

	parent := types.NoParent
	if _, ok := mirror.Games()[parentIndex]; ok {
		parent = uint32(parentIndex)
	}
	extraData := bindings.EncodeExtraData(targetBlock, parent)

	bond, err := p.bonds.InitBonds(nil, p.cfg.GameType)
	if err != nil {
		return fmt.Errorf("proposer: fetching init bond: %w", err)
	}

	data, err := p.factoryTx.PackCreate(p.cfg.GameType, rootClaim, extraData)
	if err != nil {
		return fmt.Errorf("proposer: packing create: %w", err)
	}
	if _, err := p.sender.Send(ctx, gameview.TxCandidate{TxData: data, To: &p.factoryAddr, Value: bond}); err != nil {
		return fmt.Errorf("proposer: sending create: %w", err)
	}

	p.m.RecordGameCreated("proposer")

	if proofBytes != nil {
		// The new game's address isn't known synchronously (the factory
		// assigns it on-chain); stash the proof keyed by target block and
		// submit it once sync_state ingests the game next tick.
		p.pendingUpfrontProofs[targetBlock] = proofBytes
	}
	return nil
}

// submitPendingUpfrontProofs submits prove() for any fast-finality game whose
// upfront proof was generated before the game existed on-chain, now that
// sync_state has ingested it (spec.md §4.8 fast-finality mode).
func (p *Policy) submitPendingUpfrontProofs(ctx context.Context, mirror *disputegame.Mirror) error {
	for idx, g := range mirror.Games() {
		proof, ok := p.pendingUpfrontProofs[g.L2Block]
		if !ok || g.ProposalStatus != bindings.ProposalStatusUnchallenged {
			continue
		}
		data, err := p.gameTx.PackProve(proof)
		if err != nil {
			return fmt.Errorf("packing upfront prove for game %d: %w", idx, err)
		}
		addr := g.Address
		if _, err := p.sender.Send(ctx, gameview.TxCandidate{TxData: data, To: &addr}); err != nil {
			return fmt.Errorf("sending upfront prove for game %d: %w", idx, err)
		}
		delete(p.pendingUpfrontProofs, g.L2Block)
	}
	return nil
}

// advanceDefenseTasks submits prove() for any tracked defense proof that has
// completed (spec §4.8 step 3, second half).
func (p *Policy) advanceDefenseTasks(ctx context.Context, mirror *disputegame.Mirror) error {
	for idx, pending := range p.defenseTasks {
		req, err := p.st.GetRequest(ctx, pending.reqID)
		if err != nil {
			return fmt.Errorf("fetching defense proof for game %d: %w", idx, err)
		}
		if req.Status != types.StatusComplete {
			continue
		}
		g, ok := mirror.Games()[idx]
		if !ok {
			delete(p.defenseTasks, idx)
			continue
		}
		data, err := p.gameTx.PackProve(req.Artifact)
		if err != nil {
			return fmt.Errorf("packing prove for game %d: %w", idx, err)
		}
		addr := g.Address
		if _, err := p.sender.Send(ctx, gameview.TxCandidate{TxData: data, To: &addr}); err != nil {
			return fmt.Errorf("sending prove for game %d: %w", idx, err)
		}
		delete(p.defenseTasks, idx)
	}
	return nil
}

// spawnDefenseTasks starts proving for newly-challenged games on our
// canonical chain, subject to MaxConcurrentDefenseTasks (spec §4.8 step 3,
// first half).
func (p *Policy) spawnDefenseTasks(ctx context.Context, mirror *disputegame.Mirror) error {
	for idx, g := range mirror.Games() {
		if len(p.defenseTasks) >= p.cfg.MaxConcurrentDefenseTasks {
			return nil
		}
		if _, inFlight := p.defenseTasks[idx]; inFlight {
			continue
		}
		if g.ProposalStatus != bindings.ProposalStatusChallenged {
			continue
		}
		if !mirror.IsCanonicalAncestor(types.GameIndex(g.ParentIndex)) {
			continue
		}

		var parentBlock uint64
		if parent, ok := mirror.Games()[types.GameIndex(g.ParentIndex)]; ok {
			parentBlock = parent.L2Block
		}

		req, err := p.planProof(ctx, parentBlock, g.L2Block)
		if err != nil {
			p.log.Error("planning defense proof failed", "game", idx, "err", err)
			continue
		}
		p.defenseTasks[idx] = pendingProof{reqID: req.ID, startBlock: parentBlock, endBlock: g.L2Block}
	}
	return nil
}

// planProof enqueues (or reuses) a standalone Aggregation request covering
// [start, end), the proof a defense task or an upfront fast-finality
// creation needs. Unlike aggregator.Aggregate, this does not require a
// pre-existing contiguous run of Complete Range requests: a dispute proof
// is requested fresh, covering exactly the disputed span.
func (p *Policy) planProof(ctx context.Context, start, end uint64) (*types.Request, error) {
	kind := types.RequestKindAggregation
	existing, err := p.st.ListRequests(ctx, store.Filter{Kind: &kind})
	if err != nil {
		return nil, fmt.Errorf("listing existing proof requests: %w", err)
	}
	for _, r := range existing {
		if r.StartBlock == start && r.EndBlock == end && r.Status != types.StatusFailed && r.Status != types.StatusCancelled {
			return r, nil
		}
	}

	l1Head, err := p.fetcher.L1Header(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("selecting l1 checkpoint: %w", err)
	}
	checkpoint := types.L1Checkpoint{Number: l1Head.Number.Uint64(), Hash: l1Head.Hash()}

	req := &types.Request{
		Kind:              types.RequestKindAggregation,
		Mode:              types.RequestModeReal,
		StartBlock:        start,
		EndBlock:          end,
		Status:            types.StatusUnrequested,
		CheckpointL1Block: &checkpoint,
		VkeyCommitments:   p.commitments,
		L1ChainID:         p.l1ChainID,
		L2ChainID:         p.l2ChainID,
	}
	id, err := p.st.CreateRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueuing proof request: %w", err)
	}
	req.ID = id
	return req, nil
}

var _ gameview.Policy = (*Policy)(nil)
