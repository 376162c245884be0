package disputegame

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/types"
)

type fakeFactory struct {
	proxies map[uint64]common.Address
}

func (f *fakeFactory) GameCount(*bind.CallOpts) (*big.Int, error) {
	return big.NewInt(int64(len(f.proxies))), nil
}

func (f *fakeFactory) GameAtIndex(_ *bind.CallOpts, index *big.Int) (bindings.GameAtIndexResult, error) {
	return bindings.GameAtIndexResult{Proxy: f.proxies[index.Uint64()]}, nil
}

type fakeGame struct {
	l2Block     uint64
	rootClaim   [32]byte
	status      bindings.GameStatus
	claim       bindings.ClaimData
	aggVkey     [32]byte
	rangeVkey   [32]byte
	rollupHash  [32]byte
}

func (g *fakeGame) L2BlockNumber(*bind.CallOpts) (*big.Int, error)        { return new(big.Int).SetUint64(g.l2Block), nil }
func (g *fakeGame) RootClaim(*bind.CallOpts) ([32]byte, error)            { return g.rootClaim, nil }
func (g *fakeGame) Status(*bind.CallOpts) (bindings.GameStatus, error)    { return g.status, nil }
func (g *fakeGame) ClaimData(*bind.CallOpts) (bindings.ClaimData, error) { return g.claim, nil }
func (g *fakeGame) AggregationVkey(*bind.CallOpts) ([32]byte, error)      { return g.aggVkey, nil }
func (g *fakeGame) RangeVkeyCommitment(*bind.CallOpts) ([32]byte, error)  { return g.rangeVkey, nil }
func (g *fakeGame) RollupConfigHash(*bind.CallOpts) ([32]byte, error)     { return g.rollupHash, nil }

type fakeL2Client struct {
	headers map[uint64]*gethtypes.Header
}

func (c *fakeL2Client) HeaderByNumber(_ context.Context, number *big.Int) (*gethtypes.Header, error) {
	return c.headers[number.Uint64()], nil
}
func (c *fakeL2Client) ChainID(context.Context) (*big.Int, error) { return big.NewInt(10), nil }
func (c *fakeL2Client) GetProof(context.Context, common.Address, []string, *big.Int) (*gethclient.AccountResult, error) {
	return &gethclient.AccountResult{}, nil
}

func outputRootFor(block uint64, headers map[uint64]*gethtypes.Header) [32]byte {
	h := headers[block]
	return chaindata.OutputRootAtBlock(h.Root, common.Hash{}, h.Hash())
}

var commitments = types.VkeyCommitments{
	RangeVkeyCommitment: common.HexToHash("0x1"),
	AggregationVkeyHash: common.HexToHash("0x2"),
	RollupConfigHash:    common.HexToHash("0x3"),
}

func newTestMirror(factory FactoryCaller, games map[common.Address]*fakeGame, fetcher *chaindata.Fetcher) *Mirror {
	newGame := func(addr common.Address) (GameCaller, error) {
		return games[addr], nil
	}
	return NewMirror(log.NewLogger(log.DiscardHandler()), factory, newGame, fetcher, commitments)
}

func TestSyncStateAddsGenesisGame(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")}}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr := common.HexToAddress("0x1")
	claim := outputRootFor(100, headers)
	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr}}
	games := map[common.Address]*fakeGame{
		addr: {
			l2Block:    100,
			rootClaim:  claim,
			status:     bindings.GameStatusInProgress,
			claim:      bindings.ClaimData{ParentIndex: types.NoParent, Status: bindings.ProposalStatusUnchallenged},
			aggVkey:    commitments.AggregationVkeyHash,
			rangeVkey:  commitments.RangeVkeyCommitment,
			rollupHash: commitments.RollupConfigHash,
		},
	}

	m := newTestMirror(factory, games, fetcher)
	results, err := m.SyncState(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, OutcomeAdded, results[0].Outcome)
	require.Equal(t, types.GameIndex(0), m.CanonicalHead())
}

func TestSyncStateDropsIncompatibleVkey(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")}}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr := common.HexToAddress("0x1")
	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr}}
	games := map[common.Address]*fakeGame{
		addr: {
			l2Block:   100,
			rootClaim: outputRootFor(100, headers),
			claim:     bindings.ClaimData{ParentIndex: types.NoParent},
			aggVkey:   common.HexToHash("0xbad"),
			rangeVkey: commitments.RangeVkeyCommitment,
			rollupHash: commitments.RollupConfigHash,
		},
	}

	m := newTestMirror(factory, games, fetcher)
	results, err := m.SyncState(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, results[0].Outcome)
	require.Equal(t, "incompatible vkey commitments", results[0].Reason)
}

func TestSyncStateDropsRootClaimMismatch(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")}}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr := common.HexToAddress("0x1")
	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr}}
	games := map[common.Address]*fakeGame{
		addr: {
			l2Block:    100,
			rootClaim:  common.HexToHash("0xdeadbeef"),
			claim:      bindings.ClaimData{ParentIndex: types.NoParent},
			aggVkey:    commitments.AggregationVkeyHash,
			rangeVkey:  commitments.RangeVkeyCommitment,
			rollupHash: commitments.RollupConfigHash,
		},
	}

	m := newTestMirror(factory, games, fetcher)
	results, err := m.SyncState(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, results[0].Outcome)
	require.Equal(t, "root claim mismatch", results[0].Reason)
}

func TestSyncStateDropsOrphanedParent(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")}}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr := common.HexToAddress("0x1")
	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr}}
	games := map[common.Address]*fakeGame{
		addr: {
			l2Block:    100,
			rootClaim:  outputRootFor(100, headers),
			claim:      bindings.ClaimData{ParentIndex: 7}, // no game 7 exists, not the anchor either
			aggVkey:    commitments.AggregationVkeyHash,
			rangeVkey:  commitments.RangeVkeyCommitment,
			rollupHash: commitments.RollupConfigHash,
		},
	}

	m := newTestMirror(factory, games, fetcher)
	results, err := m.SyncState(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, results[0].Outcome)
	require.Equal(t, "orphaned parent", results[0].Reason)
}

func TestRecomputeCanonicalHeadPicksHighestReachableBlock(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{
		100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")},
		200: {Number: big.NewInt(200), Root: common.HexToHash("0xbb")},
		300: {Number: big.NewInt(300), Root: common.HexToHash("0xcc")},
	}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr0 := common.HexToAddress("0x1")
	addr1 := common.HexToAddress("0x2")
	addr2 := common.HexToAddress("0x3") // disconnected branch, should not win

	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr0, 1: addr1, 2: addr2}}
	games := map[common.Address]*fakeGame{
		addr0: {l2Block: 100, rootClaim: outputRootFor(100, headers), claim: bindings.ClaimData{ParentIndex: types.NoParent}, aggVkey: commitments.AggregationVkeyHash, rangeVkey: commitments.RangeVkeyCommitment, rollupHash: commitments.RollupConfigHash},
		addr1: {l2Block: 200, rootClaim: outputRootFor(200, headers), claim: bindings.ClaimData{ParentIndex: 0}, aggVkey: commitments.AggregationVkeyHash, rangeVkey: commitments.RangeVkeyCommitment, rollupHash: commitments.RollupConfigHash},
		addr2: {l2Block: 300, rootClaim: outputRootFor(300, headers), claim: bindings.ClaimData{ParentIndex: types.NoParent}, aggVkey: commitments.AggregationVkeyHash, rangeVkey: commitments.RangeVkeyCommitment, rollupHash: commitments.RollupConfigHash},
	}

	m := newTestMirror(factory, games, fetcher)
	_, err := m.SyncState(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.GameIndex(1), m.CanonicalHead())
}

func TestSeedFromLatestValidProposalFindsValidGame(t *testing.T) {
	headers := map[uint64]*gethtypes.Header{
		100: {Number: big.NewInt(100), Root: common.HexToHash("0xaa")},
		200: {Number: big.NewInt(200), Root: common.HexToHash("0xbb")},
	}
	fetcher := chaindata.NewFetcher(log.NewLogger(log.DiscardHandler()), nil, &fakeL2Client{headers: headers}, nil)

	addr0 := common.HexToAddress("0x1")
	addr1 := common.HexToAddress("0x2")
	factory := &fakeFactory{proxies: map[uint64]common.Address{0: addr0, 1: addr1}}
	games := map[common.Address]*fakeGame{
		addr0: {l2Block: 100, rootClaim: outputRootFor(100, headers)},
		addr1: {l2Block: 200, rootClaim: common.HexToHash("0xbad")}, // invalid — latest is wrong
	}

	finder := &LatestValidProposalFinder{
		Factory: factory,
		NewGame: func(addr common.Address) (GameCaller, error) { return games[addr], nil },
		Fetcher: fetcher,
	}

	index, block, ok, err := finder.SeedFromLatestValidProposal(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.GameIndex(0), index)
	require.Equal(t, uint64(100), block)
}

func TestSeedFromLatestValidProposalNoGames(t *testing.T) {
	factory := &fakeFactory{proxies: map[uint64]common.Address{}}
	finder := &LatestValidProposalFinder{
		Factory: factory,
		NewGame: func(common.Address) (GameCaller, error) { return nil, nil },
	}
	_, _, ok, err := finder.SeedFromLatestValidProposal(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSnapshotRoundTripsThroughRestoreBackup(t *testing.T) {
	m := NewMirror(log.NewLogger(log.DiscardHandler()), &fakeFactory{}, nil, nil, commitments)
	m.games[0] = &types.Game{Index: 0, L2Block: 100, ParentIndex: types.NoParent}
	m.games[1] = &types.Game{Index: 1, L2Block: 200, ParentIndex: 0}
	m.cursor = 2
	m.SetAnchor(0)

	backup := m.Snapshot()
	require.Equal(t, types.BackupVersion, backup.Version)
	require.Len(t, backup.Games, 2)
	require.Equal(t, uint64(2), *backup.Cursor)
	require.Equal(t, types.GameIndex(0), *backup.AnchorGameIndex)

	restored := NewMirror(log.NewLogger(log.DiscardHandler()), &fakeFactory{}, nil, nil, commitments)
	restored.RestoreBackup(backup)
	require.Len(t, restored.Games(), 2)
	require.Equal(t, types.GameIndex(0), restored.AnchorIndex())
	require.Equal(t, types.GameIndex(1), restored.CanonicalHead())
}
