package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/succinctlabs/op-succinct-go/bindings"
)

// GameIndex is the factory-assigned index of an on-chain dispute game.
type GameIndex uint64

// NoParent is the ALL_ONES sentinel meaning "genesis, no parent" (spec §3).
const NoParent = ^uint32(0)

// Game is the local mirror of one on-chain IFaultDisputeGame instance
// (spec §3).
type Game struct {
	Index       GameIndex
	Address     common.Address
	ParentIndex uint32
	L2Block     uint64

	Status         bindings.GameStatus
	ProposalStatus bindings.ProposalStatus

	// RootClaim is the on-chain claimed output root at L2Block, used by the
	// Challenger Loop (spec §4.9 step 2) to detect a mismatch against the
	// locally computed output root.
	RootClaim common.Hash

	Deadline uint64

	ShouldAttemptToResolve   bool
	ShouldAttemptToClaimBond bool

	VkeyCommitments VkeyCommitments
}

// IsGenesis reports whether g has no on-chain parent.
func (g *Game) IsGenesis() bool {
	return g.ParentIndex == NoParent
}

// Resolved reports whether the game's on-chain status is a terminal one.
func (g *Game) Resolved() bool {
	return g.Status == bindings.GameStatusDefenderWins || g.Status == bindings.GameStatusChallengerWins
}
