package chaindata

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// l2Client is the production L2Client: an *ethclient.Client for headers and
// chain id, plus a *gethclient.Client sharing the same RPC connection for
// eth_getProof.
type l2Client struct {
	*ethclient.Client
	gc *gethclient.Client
}

func (c *l2Client) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	return c.gc.GetProof(ctx, account, keys, blockNumber)
}

var _ L2Client = (*l2Client)(nil)

// DialL2Client dials the L2 execution RPC and returns an L2Client capable of
// eth_getProof, the call L2OutputRoot needs to read the L2ToL1MessagePasser
// storage root (spec §4.1).
func DialL2Client(ctx context.Context, rawurl string) (L2Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dialing l2 rpc: %w", err)
	}
	return &l2Client{Client: ethclient.NewClient(rpcClient), gc: gethclient.New(rpcClient)}, nil
}
