package bindings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DisputeGameFactoryTransactor encodes calldata for state-changing
// DisputeGameFactory calls. Transaction assembly and signing is left to the
// caller's txmgr.TxManager (see proposer.Policy.createGame), matching the
// division of labor in op-proposer/driver.go between *TxData helpers and
// l.Txmgr.Send.
type DisputeGameFactoryTransactor struct {
	abi *abi.ABI
}

func NewDisputeGameFactoryTransactor() (*DisputeGameFactoryTransactor, error) {
	parsed, err := DisputeGameFactoryMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return &DisputeGameFactoryTransactor{abi: parsed}, nil
}

// PackCreate encodes the `create(gameType, rootClaim, extraData)` call.
// extraData must be the 36-byte abi.encodePacked(l2BlockNumber, parentIndex)
// described in spec §6.1.
func (t *DisputeGameFactoryTransactor) PackCreate(gameType uint32, rootClaim [32]byte, extraData []byte) ([]byte, error) {
	return t.abi.Pack("create", gameType, rootClaim, extraData)
}

// EncodeExtraData packs (l2BlockNumber uint256, parentIndex uint32) as
// abi.encodePacked would: 32 bytes big-endian block number followed by 4
// bytes big-endian parent index. ALL_ONES_PARENT_INDEX is the genesis
// sentinel from spec §3.
const ALL_ONES_PARENT_INDEX uint32 = 0xFFFFFFFF

func EncodeExtraData(l2Block uint64, parentIndex uint32) []byte {
	out := make([]byte, 36)
	big.NewInt(0).SetUint64(l2Block).FillBytes(out[:32])
	out[32] = byte(parentIndex >> 24)
	out[33] = byte(parentIndex >> 16)
	out[34] = byte(parentIndex >> 8)
	out[35] = byte(parentIndex)
	return out
}

// TxCandidateData is the minimal shape proposer/challenger hand to
// txmgr.TxCandidate{TxData: ..., To: ..., Value: ...}.
type TxCandidateData struct {
	Data  []byte
	Value *big.Int
}
