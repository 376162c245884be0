// Package challenger implements the Challenger Loop (component K, spec
// §4.9): detecting games whose claimed root disagrees with the locally
// computed output root, challenging them, resolving our own challenges once
// the prove-deadline elapses without a valid proof, and bond claim, via the
// shared gameview.Runner/Policy split.
package challenger

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/types"
)

// ChainData is the chaindata.Fetcher surface the challenger needs: the
// output root computed locally for an L2 block, compared against a game's
// on-chain RootClaim (spec §4.9 step 2). Narrowed the same way
// proposer.ChainData is, for the same reason (dial.RollupProvider isn't
// vendored anywhere in this module).
type ChainData interface {
	L2OutputRoot(ctx context.Context, block uint64) (common.Hash, error)
}

// BondReader is the DisputeGameFactory read surface the challenger needs to
// attach the required bond to a challenge() call.
type BondReader interface {
	InitBonds(opts *bind.CallOpts, gameType uint32) (*big.Int, error)
}

// Config bundles the Challenger Loop's tunables (spec §4.9, §6.4, and the
// malicious-test-mode supplement of SPEC_FULL.md §7).
type Config struct {
	GameType      uint32
	FinalityDelay time.Duration

	// MaliciousChallengePercentage, in [0, 100), is the per-game per-tick
	// probability of challenging an otherwise-valid game to exercise defense
	// logic (SPEC_FULL.md §7, grounded on fault_proof's
	// malicious_challenge_percentage).
	MaliciousChallengePercentage float64
}

// Policy implements gameview.Policy for the challenger role.
type Policy struct {
	log     log.Logger
	fetcher ChainData
	bonds   BondReader
	gameTx  *bindings.FaultDisputeGameTransactor
	sender  gameview.TxSender
	m       metrics.Metricer

	cfg Config
	rng *rand.Rand

	challenged map[types.GameIndex]bool
}

// NewPolicy constructs a challenger Policy. rng may be nil, in which case a
// new source with the fixed seed 1 is used, so the rolls repeat from run to
// run; tests inject a seeded *rand.Rand for determinism.
func NewPolicy(
	l log.Logger,
	fetcher ChainData,
	bonds BondReader,
	gameTx *bindings.FaultDisputeGameTransactor,
	sender gameview.TxSender,
	cfg Config,
	rng *rand.Rand,
	m metrics.Metricer,
) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &Policy{
		log: l, fetcher: fetcher, bonds: bonds, gameTx: gameTx, sender: sender, m: m,
		cfg:        cfg,
		rng:        rng,
		challenged: make(map[types.GameIndex]bool),
	}
}

// ShouldResolve reports whether g is still Challenged and past its
// prove-deadline without a valid proof (spec §4.9 step 4). It does not check
// who challenged g.
func (p *Policy) ShouldResolve(g *types.Game, now time.Time) bool {
	if !now.After(time.Unix(int64(g.Deadline), 0)) {
		return false
	}
	return g.ProposalStatus == bindings.ProposalStatusChallenged
}

// WeWon reports whether g resolved in the challenger's favor.
func (p *Policy) WeWon(g *types.Game) bool {
	return g.Status == bindings.GameStatusChallengerWins
}

// AdvancesAnchor is always false for the challenger: resolving a
// ChallengerWins game never extends our canonical chain (spec §4.9 has no
// analogue to §4.8 step 6).
func (p *Policy) AdvancesAnchor() bool { return false }

// Act challenges games whose root claim disagrees with the locally computed
// output root, plus (in malicious-test mode) a random subset of otherwise
// valid games (spec §4.9 steps 2-3).
func (p *Policy) Act(ctx context.Context, mirror *disputegame.Mirror) error {
	for idx, g := range mirror.Games() {
		if g.IsGenesis() || g.Status != bindings.GameStatusInProgress {
			continue
		}
		if g.ProposalStatus != bindings.ProposalStatusUnchallenged &&
			g.ProposalStatus != bindings.ProposalStatusUnchallengedAndValidProofProvided {
			continue // already challenged or otherwise past the challenge window
		}
		if p.challenged[idx] {
			continue
		}

		computed, err := p.fetcher.L2OutputRoot(ctx, g.L2Block)
		if err != nil {
			p.log.Error("computing output root failed", "game", idx, "err", err)
			continue
		}

		mismatch := computed != g.RootClaim
		malicious := !mismatch && p.cfg.MaliciousChallengePercentage > 0 &&
			p.rng.Float64()*100 < p.cfg.MaliciousChallengePercentage

		if !mismatch && !malicious {
			continue
		}
		if malicious {
			p.log.Warn("malicious-test mode: challenging a valid game", "game", idx)
		}

		if err := p.challenge(ctx, idx, g); err != nil {
			p.log.Error("challenge failed", "game", idx, "err", err)
			continue
		}
		p.challenged[idx] = true
		p.m.RecordGameChallenged("challenger")
	}
	return nil
}

func (p *Policy) challenge(ctx context.Context, idx types.GameIndex, g *types.Game) error {
	bond, err := p.bonds.InitBonds(nil, p.cfg.GameType)
	if err != nil {
		return fmt.Errorf("fetching challenger bond: %w", err)
	}
	data, err := p.gameTx.PackChallenge()
	if err != nil {
		return fmt.Errorf("packing challenge for game %d: %w", idx, err)
	}
	addr := g.Address
	if _, err := p.sender.Send(ctx, gameview.TxCandidate{TxData: data, To: &addr, Value: bond}); err != nil {
		return fmt.Errorf("sending challenge for game %d: %w", idx, err)
	}
	return nil
}

var _ gameview.Policy = (*Policy)(nil)
