package types

import "errors"

// Sentinel errors shared across pipeline, planner, aggregator, and the
// dispute game engine. Kept as a taxonomy (spec §7), not as one error type
// per failure site.
var (
	ErrInvalidRange          = errors.New("start_block must be less than end_block")
	ErrVkeyMismatch          = errors.New("vkey commitments do not match")
	ErrHeaderChainBroken     = errors.New("header chain does not reach checkpoint")
	ErrCoverageGap           = errors.New("range requests do not contiguously cover aggregation bounds")
	ErrSafeDBUnavailable     = errors.New("safe-db endpoint unavailable and fallback disabled")
	ErrNotTerminal           = errors.New("request is not in a terminal state")
	ErrIllegalTransition     = errors.New("illegal request status transition")
	ErrResourceExceeded      = errors.New("execution exceeded configured cycle/gas limit")
	ErrSplitNotApplicable    = errors.New("only range requests may be split")
	ErrOrphanedParent        = errors.New("game parent index does not resolve to an existing game")
	ErrIncompatibleVkey      = errors.New("game vkey commitments are incompatible with configured program")
	ErrRootClaimMismatch     = errors.New("game root claim disagrees with locally computed output root")
)
