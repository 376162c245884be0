package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/succinctlabs/op-succinct-go/prover"
	"github.com/succinctlabs/op-succinct-go/store"
	"github.com/succinctlabs/op-succinct-go/types"
)

type fakeWitnessGen struct {
	err     error
	witness []byte
}

func (f *fakeWitnessGen) Generate(context.Context, *types.Request) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.witness, nil
}

type fakeExecutor struct {
	stats types.ExecutionStats
	err   error
}

func (f *fakeExecutor) Execute(context.Context, *types.Request, []byte) (types.ExecutionStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func testConfig() Config {
	return Config{
		MaxConcurrentWitnessGen:    4,
		MaxConcurrentProofRequests: 4,
		RangeCycleLimit:            1_000_000,
		RangeGasLimit:              1_000_000,
		WitnessGenTimeout:          time.Second,
		ProvingDeadline:            2 * time.Second,
	}
}

func newTestRequest(st store.Store, mode types.RequestMode) *types.Request {
	req := &types.Request{
		Kind:       types.RequestKindRange,
		Mode:       mode,
		StartBlock: 10,
		EndBlock:   20,
		Status:     types.StatusUnrequested,
	}
	id, err := st.CreateRequest(context.Background(), req)
	if err != nil {
		panic(err)
	}
	req.ID = id
	return req
}

func waitForStatus(t *testing.T, st store.Store, id types.RequestID, want types.RequestStatus) *types.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req, err := st.GetRequest(context.Background(), id)
		require.NoError(t, err)
		if req.Status == want {
			return req
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %d did not reach status %s in time", id, want)
	return nil
}

func TestPipelineMockModeCompletesWithoutProver(t *testing.T) {
	st := store.NewMemoryStore()
	req := newTestRequest(st, types.RequestModeMock)

	p := NewPipeline(log.NewLogger(log.DiscardHandler()), st,
		&fakeWitnessGen{witness: []byte("w")},
		&fakeExecutor{stats: types.ExecutionStats{types.StatKeyCycles: 100}},
		prover.NewMockClient(),
		testConfig(), nil)

	require.NoError(t, p.StartWitnessGen(context.Background(), req))
	got := waitForStatus(t, st, req.ID, types.StatusComplete)
	require.Equal(t, uint64(100), got.ExecutionStats[types.StatKeyCycles])
}

func TestPipelineRealModeGoesThroughProving(t *testing.T) {
	st := store.NewMemoryStore()
	req := newTestRequest(st, types.RequestModeReal)

	p := NewPipeline(log.NewLogger(log.DiscardHandler()), st,
		&fakeWitnessGen{witness: []byte("w")},
		&fakeExecutor{stats: types.ExecutionStats{types.StatKeyCycles: 100}},
		prover.NewMockClient(),
		testConfig(), nil)

	require.NoError(t, p.StartWitnessGen(context.Background(), req))
	got := waitForStatus(t, st, req.ID, types.StatusComplete)
	require.NotEmpty(t, got.ProofNetworkID)
}

func TestPipelineWitnessGenFailureMarksFailed(t *testing.T) {
	st := store.NewMemoryStore()
	req := newTestRequest(st, types.RequestModeReal)

	p := NewPipeline(log.NewLogger(log.DiscardHandler()), st,
		&fakeWitnessGen{err: errors.New("witness host crashed")},
		&fakeExecutor{},
		prover.NewMockClient(),
		testConfig(), nil)

	require.NoError(t, p.StartWitnessGen(context.Background(), req))
	got := waitForStatus(t, st, req.ID, types.StatusFailed)
	require.Equal(t, "WitnessGen", got.FailureReason)
}

func TestPipelineResourceExceededSplitsRangeRequest(t *testing.T) {
	st := store.NewMemoryStore()
	req := newTestRequest(st, types.RequestModeReal)

	cfg := testConfig()
	cfg.RangeCycleLimit = 10

	p := NewPipeline(log.NewLogger(log.DiscardHandler()), st,
		&fakeWitnessGen{witness: []byte("w")},
		&fakeExecutor{stats: types.ExecutionStats{types.StatKeyCycles: 1000}},
		prover.NewMockClient(),
		cfg, nil)

	require.NoError(t, p.StartWitnessGen(context.Background(), req))
	got := waitForStatus(t, st, req.ID, types.StatusFailed)
	require.Equal(t, "Split", got.FailureReason)

	all, err := st.ListRequests(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3) // original + 2 splits

	var splitCount int
	for _, r := range all {
		if r.ID != req.ID {
			splitCount++
			require.True(t, r.EndBlock-r.StartBlock == 5)
		}
	}
	require.Equal(t, 2, splitCount)
}

func TestPipelineRecoverFailsCrashedWitnessGenAndExecuting(t *testing.T) {
	st := store.NewMemoryStore()
	req := newTestRequest(st, types.RequestModeReal)
	require.NoError(t, st.UpdateStatus(context.Background(), req.ID, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusWitnessGen
	}))

	p := NewPipeline(log.NewLogger(log.DiscardHandler()), st, &fakeWitnessGen{}, &fakeExecutor{}, prover.NewMockClient(), testConfig(), nil)
	require.NoError(t, p.Recover(context.Background()))

	got, err := st.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, got.Status)
	require.Equal(t, "RecoveredAfterCrash", got.FailureReason)
}
