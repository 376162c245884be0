package bindings

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const faultDisputeGameABIJSON = `[
	{"type":"function","name":"l2BlockNumber","inputs":[],"outputs":[{"name":"l2BlockNumber_","type":"uint256"}],"stateMutability":"pure"},
	{"type":"function","name":"rootClaim","inputs":[],"outputs":[{"name":"rootClaim_","type":"bytes32"}],"stateMutability":"pure"},
	{"type":"function","name":"l1Head","inputs":[],"outputs":[{"name":"l1Head_","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"status","inputs":[],"outputs":[{"name":"status_","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"claimData","inputs":[],"outputs":[{"name":"parentIndex","type":"uint32"},{"name":"counteredBy","type":"address"},{"name":"prover","type":"address"},{"name":"claim","type":"bytes32"},{"name":"status","type":"uint8"},{"name":"deadline","type":"uint64"}],"stateMutability":"view"},
	{"type":"function","name":"challenge","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"payable"},
	{"type":"function","name":"prove","inputs":[{"name":"_proof","type":"bytes"}],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"resolve","inputs":[],"outputs":[{"name":"status_","type":"uint8"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"claimCredit","inputs":[{"name":"_recipient","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"genesisL2BlockNumber","inputs":[],"outputs":[{"name":"genesisL2BlockNumber_","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"aggregationVkey","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"rangeVkeyCommitment","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"rollupConfigHash","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"}
]`

var FaultDisputeGameMetaData = &bind.MetaData{ABI: faultDisputeGameABIJSON}

// GameStatus mirrors the on-chain GameStatus enum (spec §3).
type GameStatus uint8

const (
	GameStatusInProgress GameStatus = iota
	GameStatusChallengerWins
	GameStatusDefenderWins
)

func (s GameStatus) String() string {
	switch s {
	case GameStatusInProgress:
		return "in_progress"
	case GameStatusDefenderWins:
		return "defender_wins"
	case GameStatusChallengerWins:
		return "challenger_wins"
	default:
		return "unknown"
	}
}

// ProposalStatus mirrors the on-chain ProposalStatus enum (spec §3).
type ProposalStatus uint8

const (
	ProposalStatusUnchallenged ProposalStatus = iota
	ProposalStatusChallenged
	ProposalStatusUnchallengedAndValidProofProvided
	ProposalStatusChallengedAndValidProofProvided
	ProposalStatusResolved
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusUnchallenged:
		return "unchallenged"
	case ProposalStatusChallenged:
		return "challenged"
	case ProposalStatusUnchallengedAndValidProofProvided:
		return "unchallenged_valid_proof"
	case ProposalStatusChallengedAndValidProofProvided:
		return "challenged_valid_proof"
	case ProposalStatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// ClaimData mirrors IFaultDisputeGame.claimData()'s return tuple.
type ClaimData struct {
	ParentIndex uint32
	CounteredBy common.Address
	Prover      common.Address
	Claim       [32]byte
	Status      ProposalStatus
	Deadline    uint64
}

// FaultDisputeGameCaller is a read-only binding for a single game proxy
// instance, re-created per game address (mirrors the per-proxy caller
// pattern used for OPSuccinctFaultDisputeGame in fault_proof/src/lib.rs).
type FaultDisputeGameCaller struct {
	contract *bind.BoundContract
}

func NewFaultDisputeGameCaller(address common.Address, caller bind.ContractCaller) (*FaultDisputeGameCaller, error) {
	parsed, err := FaultDisputeGameMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return &FaultDisputeGameCaller{contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

func (c *FaultDisputeGameCaller) L2BlockNumber(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "l2BlockNumber"); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *FaultDisputeGameCaller) RootClaim(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "rootClaim"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *FaultDisputeGameCaller) L1Head(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "l1Head"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *FaultDisputeGameCaller) Status(opts *bind.CallOpts) (GameStatus, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "status"); err != nil {
		return 0, err
	}
	return GameStatus(*abi.ConvertType(out[0], new(uint8)).(*uint8)), nil
}

func (c *FaultDisputeGameCaller) ClaimData(opts *bind.CallOpts) (ClaimData, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "claimData"); err != nil {
		return ClaimData{}, err
	}
	return ClaimData{
		ParentIndex: *abi.ConvertType(out[0], new(uint32)).(*uint32),
		CounteredBy: *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Prover:      *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		Claim:       out[3].([32]byte),
		Status:      ProposalStatus(*abi.ConvertType(out[4], new(uint8)).(*uint8)),
		Deadline:    *abi.ConvertType(out[5], new(uint64)).(*uint64),
	}, nil
}

func (c *FaultDisputeGameCaller) GenesisL2BlockNumber(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "genesisL2BlockNumber"); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *FaultDisputeGameCaller) AggregationVkey(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "aggregationVkey"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *FaultDisputeGameCaller) RangeVkeyCommitment(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "rangeVkeyCommitment"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *FaultDisputeGameCaller) RollupConfigHash(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "rollupConfigHash"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

// FaultDisputeGameTransactor packs calldata for the state-mutating methods;
// submission still goes through txmgr.TxManager, same division as
// DisputeGameFactoryTransactor.
type FaultDisputeGameTransactor struct {
	abi *abi.ABI
}

func NewFaultDisputeGameTransactor() (*FaultDisputeGameTransactor, error) {
	parsed, err := abi.JSON(strings.NewReader(faultDisputeGameABIJSON))
	if err != nil {
		return nil, err
	}
	return &FaultDisputeGameTransactor{abi: &parsed}, nil
}

func (t *FaultDisputeGameTransactor) PackChallenge() ([]byte, error) {
	return t.abi.Pack("challenge")
}

func (t *FaultDisputeGameTransactor) PackProve(proof []byte) ([]byte, error) {
	return t.abi.Pack("prove", proof)
}

func (t *FaultDisputeGameTransactor) PackResolve() ([]byte, error) {
	return t.abi.Pack("resolve")
}

func (t *FaultDisputeGameTransactor) PackClaimCredit(recipient common.Address) ([]byte, error) {
	return t.abi.Pack("claimCredit", recipient)
}
