package bindings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const opSuccinctL2OutputOracleABIJSON = `[
	{"type":"function","name":"aggregationVkey","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"rangeVkeyCommitment","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"rollupConfigHash","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"submissionInterval","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"latestBlockNumber","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"nextBlockNumber","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"version","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"checkpointBlockHash","inputs":[{"name":"_blockNumber","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"proposeL2Output","inputs":[{"name":"_outputRoot","type":"bytes32"},{"name":"_l2BlockNumber","type":"uint256"},{"name":"_l1BlockNumber","type":"uint256"},{"name":"_proof","type":"bytes"},{"name":"_proverAddress","type":"address"}],"outputs":[],"stateMutability":"payable"}
]`

// OPSuccinctL2OutputOracleMetaData is the validity-mode contract consumed by
// the Output Submitter (spec §4.6, §6.1). Named after op-succinct's Solidity
// contract, whose ABI surface extends the stock OP-stack L2OutputOracle
// with vkey/rollup-config getters.
var OPSuccinctL2OutputOracleMetaData = &bind.MetaData{ABI: opSuccinctL2OutputOracleABIJSON}

type OPSuccinctL2OutputOracleCaller struct {
	contract *bind.BoundContract
}

func NewOPSuccinctL2OutputOracleCaller(address common.Address, caller bind.ContractCaller) (*OPSuccinctL2OutputOracleCaller, error) {
	parsed, err := OPSuccinctL2OutputOracleMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return &OPSuccinctL2OutputOracleCaller{contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

func (c *OPSuccinctL2OutputOracleCaller) Version(opts *bind.CallOpts) (string, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "version"); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *OPSuccinctL2OutputOracleCaller) NextBlockNumber(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "nextBlockNumber"); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *OPSuccinctL2OutputOracleCaller) LatestBlockNumber(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "latestBlockNumber"); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *OPSuccinctL2OutputOracleCaller) AggregationVkey(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "aggregationVkey"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *OPSuccinctL2OutputOracleCaller) RangeVkeyCommitment(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "rangeVkeyCommitment"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *OPSuccinctL2OutputOracleCaller) RollupConfigHash(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "rollupConfigHash"); err != nil {
		return [32]byte{}, err
	}
	return out[0].([32]byte), nil
}

func (c *OPSuccinctL2OutputOracleCaller) SubmissionInterval(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "submissionInterval"); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// OPSuccinctL2OutputOracleTransactor packs calldata for checkpointBlockHash
// and proposeL2Output (spec §4.5 step 1, §4.6).
type OPSuccinctL2OutputOracleTransactor struct {
	abi *abi.ABI
}

func NewOPSuccinctL2OutputOracleTransactor() (*OPSuccinctL2OutputOracleTransactor, error) {
	parsed, err := OPSuccinctL2OutputOracleMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return &OPSuccinctL2OutputOracleTransactor{abi: parsed}, nil
}

func (t *OPSuccinctL2OutputOracleTransactor) PackCheckpointBlockHash(blockNumber *big.Int) ([]byte, error) {
	return t.abi.Pack("checkpointBlockHash", blockNumber)
}

func (t *OPSuccinctL2OutputOracleTransactor) PackProposeL2Output(
	outputRoot [32]byte,
	l2BlockNumber *big.Int,
	l1BlockNumber *big.Int,
	proof []byte,
	proverAddress common.Address,
) ([]byte, error) {
	return t.abi.Pack("proposeL2Output", outputRoot, l2BlockNumber, l1BlockNumber, proof, proverAddress)
}
