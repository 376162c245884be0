package chaindata

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("fake: header not found")

// fakeL1Client serves headers from an in-memory slice indexed by block
// number, the deterministic style used throughout the teacher's node/e2e
// fakes instead of a live RPC endpoint.
type fakeL1Client struct {
	headers []*types.Header
}

func (f *fakeL1Client) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	if number == nil {
		return f.headers[len(f.headers)-1], nil
	}
	n := number.Uint64()
	if n >= uint64(len(f.headers)) {
		return nil, errNotFound
	}
	return f.headers[n], nil
}

func (f *fakeL1Client) HeaderByHash(_ context.Context, hash common.Hash) (*types.Header, error) {
	for _, h := range f.headers {
		if h.Hash() == hash {
			return h, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeL1Client) BlockNumber(context.Context) (uint64, error) {
	return uint64(len(f.headers) - 1), nil
}

func (f *fakeL1Client) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeL1Client) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeL1Client) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func newFakeChain(n int) *fakeL1Client {
	headers := make([]*types.Header, n)
	var parent common.Hash
	for i := 0; i < n; i++ {
		h := &types.Header{
			Number:     big.NewInt(int64(i)),
			Time:       uint64(i * 12),
			ParentHash: parent,
		}
		headers[i] = h
		parent = h.Hash()
	}
	return &fakeL1Client{headers: headers}
}

func TestOutputRootAtBlock(t *testing.T) {
	stateRoot := common.HexToHash("0x01")
	storageRoot := common.HexToHash("0x02")
	blockHash := common.HexToHash("0x03")

	got := OutputRootAtBlock(stateRoot, storageRoot, blockHash)

	var buf [104]byte
	copy(buf[8:40], stateRoot[:])
	copy(buf[40:72], storageRoot[:])
	copy(buf[72:104], blockHash[:])
	want := crypto.Keccak256Hash(buf[:])

	require.Equal(t, want, got)
}

func TestOutputRootAtBlockDeterministic(t *testing.T) {
	a := OutputRootAtBlock(common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03"))
	b := OutputRootAtBlock(common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03"))
	require.Equal(t, a, b)

	c := OutputRootAtBlock(common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x04"))
	require.NotEqual(t, a, c)
}

func TestFindBlockByTimestamp(t *testing.T) {
	chain := newFakeChain(20)
	f := NewFetcher(nil, chain, nil, nil)

	got, err := f.FindBlockByTimestamp(context.Background(), 55)
	require.NoError(t, err)
	// block 5 has time 60, block 4 has time 48 - smallest with time >= 55 is block 5
	require.Equal(t, uint64(5), got.Number.Uint64())
}

func TestFindBlockByTimestampExactMatch(t *testing.T) {
	chain := newFakeChain(20)
	f := NewFetcher(nil, chain, nil, nil)

	got, err := f.FindBlockByTimestamp(context.Background(), 48)
	require.NoError(t, err)
	require.Equal(t, uint64(4), got.Number.Uint64())
}

func TestFindBlockByTimestampAfterHead(t *testing.T) {
	chain := newFakeChain(5)
	f := NewFetcher(nil, chain, nil, nil)

	_, err := f.FindBlockByTimestamp(context.Background(), 10_000)
	require.Error(t, err)
}

// fakeL2Client serves a fixed header and eth_getProof result, so
// L2OutputRoot can be exercised without a live L2 node.
type fakeL2Client struct {
	header      *types.Header
	storageHash common.Hash
	getProofErr error
}

func (f *fakeL2Client) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return f.header, nil
}

func (f *fakeL2Client) ChainID(context.Context) (*big.Int, error) { return big.NewInt(10), nil }

func (f *fakeL2Client) GetProof(context.Context, common.Address, []string, *big.Int) (*gethclient.AccountResult, error) {
	if f.getProofErr != nil {
		return nil, f.getProofErr
	}
	return &gethclient.AccountResult{StorageHash: f.storageHash}, nil
}

func TestL2OutputRootFoldsMessagePasserStorageRoot(t *testing.T) {
	header := &types.Header{Number: big.NewInt(42), Root: common.HexToHash("0xaa")}
	storageRoot := common.HexToHash("0xbb")
	l2 := &fakeL2Client{header: header, storageHash: storageRoot}
	f := NewFetcher(log.NewLogger(log.DiscardHandler()), nil, l2, nil)

	got, err := f.L2OutputRoot(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, OutputRootAtBlock(header.Root, storageRoot, header.Hash()), got)
}

func TestL2OutputRootPropagatesProofError(t *testing.T) {
	header := &types.Header{Number: big.NewInt(1)}
	l2 := &fakeL2Client{header: header, getProofErr: errNotFound}
	f := NewFetcher(log.NewLogger(log.DiscardHandler()), nil, l2, nil)

	_, err := f.L2OutputRoot(context.Background(), 1)
	require.Error(t, err)
}
