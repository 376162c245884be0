package bindings

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const disputeGameFactoryABIJSON = `[
	{"type":"function","name":"gameCount","inputs":[],"outputs":[{"name":"gameCount_","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"gameAtIndex","inputs":[{"name":"_index","type":"uint256"}],"outputs":[{"name":"gameType_","type":"uint32"},{"name":"timestamp_","type":"uint64"},{"name":"proxy_","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"initBonds","inputs":[{"name":"_gameType","type":"uint32"}],"outputs":[{"name":"bond_","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"gameImpls","inputs":[{"name":"_gameType","type":"uint32"}],"outputs":[{"name":"impl_","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"version","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"create","inputs":[{"name":"_gameType","type":"uint32"},{"name":"_rootClaim","type":"bytes32"},{"name":"_extraData","type":"bytes"}],"outputs":[{"name":"proxy_","type":"address"}],"stateMutability":"payable"}
]`

// DisputeGameFactoryMetaData mirrors the abigen-generated *MetaData bundles used
// throughout op-stack (op-proposer/bindings, op-challenger/bindings): a single
// parsed-on-demand ABI shared by the Caller and Transactor below.
var DisputeGameFactoryMetaData = &bind.MetaData{
	ABI: disputeGameFactoryABIJSON,
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read subset of bind.ContractBackend that the Caller
// types in this package need. It matches the shape consumed by
// op-proposer/driver.go's L1Client interface.
type ContractCaller interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DisputeGameFactoryCaller wraps a bound contract for read-only access to the
// DisputeGameFactory, grounded on bindings.NewL2OutputOracleCaller from
// op-proposer/driver.go.
type DisputeGameFactoryCaller struct {
	contract *bind.BoundContract
}

func NewDisputeGameFactoryCaller(address common.Address, caller bind.ContractCaller) (*DisputeGameFactoryCaller, error) {
	parsed, err := DisputeGameFactoryMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, *parsed, caller, nil, nil)
	return &DisputeGameFactoryCaller{contract: contract}, nil
}

func (c *DisputeGameFactoryCaller) GameCount(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "gameCount")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

type GameAtIndexResult struct {
	GameType  uint32
	Timestamp uint64
	Proxy     common.Address
}

func (c *DisputeGameFactoryCaller) GameAtIndex(opts *bind.CallOpts, index *big.Int) (GameAtIndexResult, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "gameAtIndex", index)
	if err != nil {
		return GameAtIndexResult{}, err
	}
	return GameAtIndexResult{
		GameType:  *abi.ConvertType(out[0], new(uint32)).(*uint32),
		Timestamp: *abi.ConvertType(out[1], new(uint64)).(*uint64),
		Proxy:     *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
	}, nil
}

func (c *DisputeGameFactoryCaller) InitBonds(opts *bind.CallOpts, gameType uint32) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "initBonds", gameType)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *DisputeGameFactoryCaller) GameImpls(opts *bind.CallOpts, gameType uint32) (common.Address, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "gameImpls", gameType)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *DisputeGameFactoryCaller) Version(opts *bind.CallOpts) (string, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "version")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
