package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
)

// RemoteSigner signs through an external signer endpoint (e.g. clef) over
// its account_signTransaction JSON-RPC method, as an alternative to a local
// private key (spec §4.1's SIGNER_URL/SIGNER_ADDRESS flags).
type RemoteSigner struct {
	client *rpc.Client
	from   common.Address
}

func DialRemoteSigner(ctx context.Context, url string, from common.Address) (*RemoteSigner, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing remote signer %s: %w", url, err)
	}
	return &RemoteSigner{client: client, from: from}, nil
}

// signTxResult is account_signTransaction's response shape: the RLP-encoded
// signed transaction, hex-encoded.
type signTxResult struct {
	Raw hexutil.Bytes      `json:"raw"`
	Tx  *types.Transaction `json:"tx"`
}

func (s *RemoteSigner) Sign(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	args := map[string]interface{}{
		"from":  s.from,
		"to":    tx.To(),
		"gas":   hexutil.Uint64(tx.Gas()),
		"value": (*hexutil.Big)(tx.Value()),
		"nonce": hexutil.Uint64(tx.Nonce()),
		"data":  hexutil.Bytes(tx.Data()),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
		args["chainId"] = (*hexutil.Big)(tx.ChainId())
	} else {
		args["gasPrice"] = (*hexutil.Big)(tx.GasPrice())
	}

	var result signTxResult
	if err := s.client.CallContext(ctx, &result, "account_signTransaction", args); err != nil {
		return nil, fmt.Errorf("account_signTransaction: %w", err)
	}
	if len(result.Raw) == 0 {
		return nil, fmt.Errorf("account_signTransaction: empty response")
	}

	signed := new(types.Transaction)
	if err := rlp.DecodeBytes(result.Raw, signed); err != nil {
		return nil, fmt.Errorf("decoding signed transaction: %w", err)
	}
	return signed, nil
}

var _ Signer = (*RemoteSigner)(nil)
