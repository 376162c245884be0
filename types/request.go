// Package types holds the data model shared by the proof request pipeline,
// the request store, and the dispute game engine: the Request and Game
// structs from spec §3, plus their JSON/column-shaped auxiliary types.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RequestID is a monotonically assigned, store-unique identifier.
type RequestID uint64

// RequestKind distinguishes a range proof request from an aggregation
// request (spec §3).
type RequestKind int

const (
	RequestKindRange RequestKind = iota
	RequestKindAggregation
)

func (k RequestKind) String() string {
	if k == RequestKindAggregation {
		return "aggregation"
	}
	return "range"
}

// RequestMode selects whether a request is fulfilled by the real external
// prover network or synthesized locally for tests (spec §3, §4.2).
type RequestMode int

const (
	RequestModeReal RequestMode = iota
	RequestModeMock
)

func (m RequestMode) String() string {
	if m == RequestModeMock {
		return "mock"
	}
	return "real"
}

// RequestStatus is a node in the state machine DAG of spec §4.3.
type RequestStatus int

const (
	StatusUnrequested RequestStatus = iota
	StatusWitnessGen
	StatusExecuting
	StatusProving
	StatusComplete
	StatusRelayed
	StatusFailed
	StatusCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case StatusUnrequested:
		return "unrequested"
	case StatusWitnessGen:
		return "witnessgen"
	case StatusExecuting:
		return "executing"
	case StatusProving:
		return "proving"
	case StatusComplete:
		return "complete"
	case StatusRelayed:
		return "relayed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a terminal status, one that no request
// leaves to go back to an earlier stage (spec §3). Complete is terminal yet
// still moves forward to Relayed when the Output Submitter posts it.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusRelayed, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// InFlight reports whether s counts against the concurrency limits of
// spec §4.3 (max_concurrent_witness_gen / max_concurrent_proof_requests).
func (s RequestStatus) InFlight() bool {
	switch s {
	case StatusWitnessGen, StatusExecuting, StatusProving:
		return true
	default:
		return false
	}
}

// VkeyCommitments binds a request (or game) to the program binaries and
// chain configuration active at creation time (spec §3).
type VkeyCommitments struct {
	RangeVkeyCommitment  common.Hash
	AggregationVkeyHash  common.Hash
	RollupConfigHash     common.Hash
}

// Equal reports whether two commitment sets are bitwise identical; used by
// the aggregator (spec §3 invariant: an Aggregation's commitments must equal
// those of every constituent Range) and the dispute mirror (spec §4.7).
func (v VkeyCommitments) Equal(o VkeyCommitments) bool {
	return v.RangeVkeyCommitment == o.RangeVkeyCommitment &&
		v.AggregationVkeyHash == o.AggregationVkeyHash &&
		v.RollupConfigHash == o.RollupConfigHash
}

// L1Checkpoint is the L1 block a request's proof anchors to (aggregation
// only, spec §3).
type L1Checkpoint struct {
	Number uint64
	Hash   common.Hash
}

// Timing carries the optional per-stage durations of spec §3.
type Timing struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	WitnessGen  *time.Duration
	Execution   *time.Duration
	Proving     *time.Duration
}

// ExecutionStats is the informational cycle/gas counter map of spec §3,
// persisted as JSON in the `exec_stats` TEXT column of store.Schema.
type ExecutionStats map[string]uint64

const (
	StatKeyCycles = "cycles"
	StatKeyGas    = "gas"
)

// Request is a unit of proving work (spec §3).
type Request struct {
	ID   RequestID
	Kind RequestKind
	Mode RequestMode

	StartBlock uint64
	EndBlock   uint64

	Status RequestStatus

	ProofNetworkID []byte // opaque 32-byte handle once submitted, nil otherwise

	CheckpointL1Block *L1Checkpoint // aggregation only

	VkeyCommitments VkeyCommitments

	ExecutionStats ExecutionStats

	Timing Timing

	Artifact []byte // proof bytes; present only in Complete/Relayed

	ProverAddress *common.Address // aggregation only, credited on-chain

	RelayTxHash *common.Hash

	ContractAddress *common.Address

	TotalTxs     int64
	TotalGas     int64
	TotalL1Fees  *big.Int
	TotalTxFees  *big.Int

	L1ChainID uint64
	L2ChainID uint64

	L1HeadBlock *uint64

	FailureReason string // set when Status == StatusFailed, e.g. "Split"
}

// BlockCount returns the number of L2 blocks this request's range spans.
func (r *Request) BlockCount() uint64 {
	return r.EndBlock - r.StartBlock
}

// Validate enforces the structural invariant start < end (spec §3).
func (r *Request) Validate() error {
	if r.StartBlock >= r.EndBlock {
		return ErrInvalidRange
	}
	return nil
}
