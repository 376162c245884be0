package proposer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/store"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

type fakeChainData struct {
	safeHead   uint64
	outputRoot common.Hash
	l1Header   *types.Header
}

func (f *fakeChainData) L2OutputRoot(context.Context, uint64) (common.Hash, error) {
	return f.outputRoot, nil
}

func (f *fakeChainData) SafeL2Head(context.Context) (uint64, error) { return f.safeHead, nil }

func (f *fakeChainData) L1Header(context.Context, *big.Int) (*types.Header, error) {
	return f.l1Header, nil
}

type fakeBonds struct{ bond *big.Int }

func (f *fakeBonds) InitBonds(*bind.CallOpts, uint32) (*big.Int, error) { return f.bond, nil }

type fakeSender struct{ sent []gameview.TxCandidate }

func (f *fakeSender) Send(_ context.Context, c gameview.TxCandidate) (*types.Receipt, error) {
	f.sent = append(f.sent, c)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

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
	l2Block uint64
	status  bindings.GameStatus
	claim   bindings.ClaimData
}

func (g *fakeGame) L2BlockNumber(*bind.CallOpts) (*big.Int, error) {
	return new(big.Int).SetUint64(g.l2Block), nil
}
func (g *fakeGame) RootClaim(*bind.CallOpts) ([32]byte, error) { return [32]byte{}, nil }
func (g *fakeGame) Status(*bind.CallOpts) (bindings.GameStatus, error) {
	return g.status, nil
}
func (g *fakeGame) ClaimData(*bind.CallOpts) (bindings.ClaimData, error) { return g.claim, nil }
func (g *fakeGame) AggregationVkey(*bind.CallOpts) ([32]byte, error)     { return [32]byte{}, nil }
func (g *fakeGame) RangeVkeyCommitment(*bind.CallOpts) ([32]byte, error) { return [32]byte{}, nil }
func (g *fakeGame) RollupConfigHash(*bind.CallOpts) ([32]byte, error)    { return [32]byte{}, nil }

func newTestMirror(t *testing.T, games map[common.Address]*fakeGame, proxies map[uint64]common.Address) *disputegame.Mirror {
	t.Helper()
	factory := &fakeFactory{proxies: proxies}
	newGame := func(addr common.Address) (disputegame.GameCaller, error) { return games[addr], nil }
	mirror := disputegame.NewMirror(log.NewLogger(log.DiscardHandler()), factory, newGame, nil, succinctTypes.VkeyCommitments{})
	_, err := mirror.SyncState(context.Background())
	require.NoError(t, err)
	return mirror
}

func newTestPolicy(st store.Store, chain *fakeChainData, bonds *fakeBonds, sender *fakeSender, cfg Config) *Policy {
	factoryTx, _ := bindings.NewDisputeGameFactoryTransactor()
	gameTx, _ := bindings.NewFaultDisputeGameTransactor()
	return NewPolicy(
		log.NewLogger(log.DiscardHandler()),
		st, chain,
		common.HexToAddress("0xfactory"),
		factoryTx, bonds, gameTx, sender,
		1, 10,
		succinctTypes.VkeyCommitments{},
		cfg,
		nil,
	)
}

func defaultConfig() Config {
	return Config{
		GameType:                  0,
		ProposalInterval:          50,
		MaxConcurrentDefenseTasks: 2,
		FinalityDelay:             time.Hour,
	}
}

func TestShouldResolveAndWeWon(t *testing.T) {
	p := newTestPolicy(store.NewMemoryStore(), &fakeChainData{}, &fakeBonds{bond: big.NewInt(0)}, &fakeSender{}, defaultConfig())

	past := uint64(time.Now().Add(-time.Minute).Unix())
	future := uint64(time.Now().Add(time.Minute).Unix())

	require.True(t, p.ShouldResolve(&succinctTypes.Game{Deadline: past, ProposalStatus: bindings.ProposalStatusUnchallenged}, time.Now()))
	require.True(t, p.ShouldResolve(&succinctTypes.Game{Deadline: past, ProposalStatus: bindings.ProposalStatusChallengedAndValidProofProvided}, time.Now()))
	require.False(t, p.ShouldResolve(&succinctTypes.Game{Deadline: future, ProposalStatus: bindings.ProposalStatusUnchallenged}, time.Now()))
	require.False(t, p.ShouldResolve(&succinctTypes.Game{Deadline: past, ProposalStatus: bindings.ProposalStatusChallenged}, time.Now()))

	require.True(t, p.WeWon(&succinctTypes.Game{Status: bindings.GameStatusDefenderWins}))
	require.False(t, p.WeWon(&succinctTypes.Game{Status: bindings.GameStatusChallengerWins}))
	require.True(t, p.AdvancesAnchor())
}

func TestActNormalCreatesGameWhenSafeHeadClearsInterval(t *testing.T) {
	mirror := newTestMirror(t, nil, nil) // empty mirror, anchor/canonical head both at index 0 with no backing game
	chain := &fakeChainData{safeHead: 100}
	sender := &fakeSender{}
	cfg := defaultConfig()
	p := newTestPolicy(store.NewMemoryStore(), chain, &fakeBonds{bond: big.NewInt(7)}, sender, cfg)

	require.NoError(t, p.Act(context.Background(), mirror))
	require.Len(t, sender.sent, 1)
	require.Equal(t, big.NewInt(7), sender.sent[0].Value)
}

func TestActNormalSkipsCreationBelowInterval(t *testing.T) {
	mirror := newTestMirror(t, nil, nil)
	chain := &fakeChainData{safeHead: 10} // below ProposalInterval of 50
	sender := &fakeSender{}
	p := newTestPolicy(store.NewMemoryStore(), chain, &fakeBonds{bond: big.NewInt(0)}, sender, defaultConfig())

	require.NoError(t, p.Act(context.Background(), mirror))
	require.Empty(t, sender.sent)
}

func TestSpawnAndAdvanceDefenseTask(t *testing.T) {
	genesis := common.HexToAddress("0x1")
	child := common.HexToAddress("0x2")
	games := map[common.Address]*fakeGame{
		genesis: {l2Block: 0, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: succinctTypes.NoParent, Deadline: 1}},
		child:   {l2Block: 100, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: 0, Status: bindings.ProposalStatusChallenged, Deadline: 1}},
	}
	mirror := newTestMirror(t, games, map[uint64]common.Address{0: genesis, 1: child})

	st := store.NewMemoryStore()
	chain := &fakeChainData{safeHead: 5, l1Header: &types.Header{Number: big.NewInt(1)}}
	sender := &fakeSender{}
	cfg := defaultConfig()
	p := newTestPolicy(st, chain, &fakeBonds{bond: big.NewInt(0)}, sender, cfg)

	require.NoError(t, p.Act(context.Background(), mirror))
	require.Len(t, p.defenseTasks, 1)
	task := p.defenseTasks[1]
	require.Equal(t, uint64(0), task.startBlock)
	require.Equal(t, uint64(100), task.endBlock)

	// Complete the proof request; the next Act should submit prove() and
	// clear the tracked task.
	require.NoError(t, st.UpdateStatus(context.Background(), task.reqID, succinctTypes.StatusUnrequested, func(r *succinctTypes.Request) {
		r.Status = succinctTypes.StatusComplete
		r.Artifact = []byte{0xaa}
	}))

	require.NoError(t, p.Act(context.Background(), mirror))
	require.Empty(t, p.defenseTasks)
	require.Len(t, sender.sent, 1)
	require.Equal(t, &child, sender.sent[0].To)
}

func TestSpawnDefenseTaskSkipsNonCanonicalParent(t *testing.T) {
	genesis := common.HexToAddress("0x1")
	orphan := common.HexToAddress("0x2")
	challenged := common.HexToAddress("0x3")
	games := map[common.Address]*fakeGame{
		genesis:    {l2Block: 0, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: succinctTypes.NoParent, Deadline: 1}},
		orphan:     {l2Block: 50, status: bindings.GameStatusDefenderWins, claim: bindings.ClaimData{ParentIndex: succinctTypes.NoParent, Deadline: 1}},
		challenged: {l2Block: 100, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: 1, Status: bindings.ProposalStatusChallenged, Deadline: 1}},
	}
	mirror := newTestMirror(t, games, map[uint64]common.Address{0: genesis, 1: orphan, 2: challenged})

	st := store.NewMemoryStore()
	chain := &fakeChainData{}
	sender := &fakeSender{}
	p := newTestPolicy(st, chain, &fakeBonds{bond: big.NewInt(0)}, sender, defaultConfig())

	require.NoError(t, p.Act(context.Background(), mirror))
	require.Empty(t, p.defenseTasks)
}

func TestFastFinalityProvesUpfrontThenCreatesAndSubmitsProof(t *testing.T) {
	st := store.NewMemoryStore()
	chain := &fakeChainData{safeHead: 100, l1Header: &types.Header{Number: big.NewInt(1)}}
	sender := &fakeSender{}
	cfg := defaultConfig()
	cfg.FastFinality = true
	cfg.FastFinalityProvingLimit = 1
	p := newTestPolicy(st, chain, &fakeBonds{bond: big.NewInt(0)}, sender, cfg)

	mirror := newTestMirror(t, nil, nil)

	// First tick: plans the upfront proof, does not create the game yet.
	require.NoError(t, p.Act(context.Background(), mirror))
	require.Empty(t, sender.sent)
	require.NotNil(t, p.pendingCreation)
	reqID := p.pendingCreation.reqID

	// A second tick while the proof is still pending does nothing new, and
	// the proving slot stays occupied (FastFinalityProvingLimit of 1 means a
	// concurrent plan attempt is a no-op).
	require.NoError(t, p.Act(context.Background(), mirror))
	require.Empty(t, sender.sent)

	require.NoError(t, st.UpdateStatus(context.Background(), reqID, succinctTypes.StatusUnrequested, func(r *succinctTypes.Request) {
		r.Status = succinctTypes.StatusComplete
		r.Artifact = []byte{0xbb}
	}))

	// Third tick: the upfront proof is complete, so Act creates the game and
	// stashes the proof by target block.
	require.NoError(t, p.Act(context.Background(), mirror))
	require.Len(t, sender.sent, 1)
	require.Nil(t, p.pendingCreation)
	require.Contains(t, p.pendingUpfrontProofs, uint64(100))

	// Once sync_state ingests the new unchallenged game at L2 block 100,
	// submitPendingUpfrontProofs should submit prove() for it.
	newGameAddr := common.HexToAddress("0x2")
	games := map[common.Address]*fakeGame{
		common.HexToAddress("0x1"): {l2Block: 0, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: succinctTypes.NoParent, Deadline: 1}},
		newGameAddr:                 {l2Block: 100, status: bindings.GameStatusInProgress, claim: bindings.ClaimData{ParentIndex: 0, Status: bindings.ProposalStatusUnchallenged, Deadline: 1}},
	}
	ingestedMirror := newTestMirror(t, games, map[uint64]common.Address{0: common.HexToAddress("0x1"), 1: newGameAddr})

	chain.safeHead = 100 // already past this target, actNormal/actFastFinality should no-op further
	require.NoError(t, p.Act(context.Background(), ingestedMirror))
	require.Len(t, sender.sent, 2)
	require.Equal(t, &newGameAddr, sender.sent[1].To)
	require.NotContains(t, p.pendingUpfrontProofs, uint64(100))
}

func TestPlanProofReusesExistingRequest(t *testing.T) {
	st := store.NewMemoryStore()
	chain := &fakeChainData{l1Header: &types.Header{Number: big.NewInt(1)}}
	p := newTestPolicy(st, chain, &fakeBonds{bond: big.NewInt(0)}, &fakeSender{}, defaultConfig())

	first, err := p.planProof(context.Background(), 10, 20)
	require.NoError(t, err)

	second, err := p.planProof(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	all, err := st.ListRequests(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}
