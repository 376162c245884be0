package bindings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const anchorStateRegistryABIJSON = `[
	{"type":"function","name":"getAnchorRoot","inputs":[],"outputs":[{"name":"root_","type":"bytes32"},{"name":"l2BlockNumber_","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"isGameFinalized","inputs":[{"name":"_game","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

var AnchorStateRegistryMetaData = &bind.MetaData{ABI: anchorStateRegistryABIJSON}

// AnchorStateRegistryCaller reads the finality anchor used to seed the
// canonical head (spec §3 "Anchor", §4.8 step 6).
type AnchorStateRegistryCaller struct {
	contract *bind.BoundContract
}

func NewAnchorStateRegistryCaller(address common.Address, caller bind.ContractCaller) (*AnchorStateRegistryCaller, error) {
	parsed, err := AnchorStateRegistryMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return &AnchorStateRegistryCaller{contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

type AnchorRoot struct {
	Root          [32]byte
	L2BlockNumber *big.Int
}

func (c *AnchorStateRegistryCaller) GetAnchorRoot(opts *bind.CallOpts) (AnchorRoot, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "getAnchorRoot"); err != nil {
		return AnchorRoot{}, err
	}
	return AnchorRoot{
		Root:          out[0].([32]byte),
		L2BlockNumber: abi.ConvertType(out[1], new(big.Int)).(*big.Int),
	}, nil
}

func (c *AnchorStateRegistryCaller) IsGameFinalized(opts *bind.CallOpts, game common.Address) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "isGameFinalized", game); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}
