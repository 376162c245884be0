package store

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/succinctlabs/op-succinct-go/types"
)

// newTestSQLStore opens a private named in-memory database per test: shared
// cache mode keeps the database alive across the pool's separate
// connections, and the unique name keeps tests in this package from seeing
// each other's rows.
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	return s
}

// TestSQLStoreRoundTrip checks that every field marshalRequest/scanRequest
// touch survives a write then a read back, including the optional fields
// that are only set once a request has progressed (spec §6.2).
func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	req := newTestRequest()
	req.ProofNetworkID = []byte("network-id")
	req.CheckpointL1Block = &types.L1Checkpoint{Number: 500, Hash: common.HexToHash("0xabc")}
	req.ExecutionStats = types.ExecutionStats{"cycles": 42}
	witness := 2 * time.Second
	req.Timing.WitnessGen = &witness
	proverAddr := common.HexToAddress("0xbeef")
	req.ProverAddress = &proverAddr
	req.TotalTxs = 7
	req.TotalGas = 1_000_000
	req.TotalL1Fees = big.NewInt(123456)

	id, err := s.CreateRequest(ctx, req)
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, req.ProofNetworkID, got.ProofNetworkID)
	require.Equal(t, req.CheckpointL1Block.Number, got.CheckpointL1Block.Number)
	require.Equal(t, req.CheckpointL1Block.Hash, got.CheckpointL1Block.Hash)
	require.Equal(t, req.ExecutionStats, got.ExecutionStats)
	require.Equal(t, witness, *got.Timing.WitnessGen)
	require.Equal(t, proverAddr, *got.ProverAddress)
	require.Equal(t, req.TotalTxs, got.TotalTxs)
	require.Equal(t, req.TotalGas, got.TotalGas)
	require.Equal(t, 0, req.TotalL1Fees.Cmp(got.TotalL1Fees))
}

func TestSQLStoreGetMissing(t *testing.T) {
	s := newTestSQLStore(t)
	_, err := s.GetRequest(context.Background(), types.RequestID(999))
	require.ErrorIs(t, err, ErrNotFound)
}

// TestSQLStoreUpdateStatusCAS mirrors TestMemoryStoreUpdateStatusCAS: the
// same compare-and-swap contract must hold against a real database, not
// just the in-memory store's mutex.
func TestSQLStoreUpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)
	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, id, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusWitnessGen
	})
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusWitnessGen, got.Status)

	err = s.UpdateStatus(ctx, id, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusFailed
	})
	require.ErrorIs(t, err, ErrStaleStatus)

	got, err = s.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusWitnessGen, got.Status, "losing writer must not apply its mutation")
}

func TestSQLStoreListRequestsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	rangeID, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	agg := newTestRequest()
	agg.Kind = types.RequestKindAggregation
	_, err = s.CreateRequest(ctx, agg)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, rangeID, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusProving
	}))

	kind := types.RequestKindRange
	got, err := s.ListRequests(ctx, Filter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rangeID, got[0].ID)

	got, err = s.ListRequests(ctx, Filter{Statuses: []types.RequestStatus{types.StatusProving}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, types.StatusProving, got[0].Status)
}

func TestSQLStoreCountInFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, id, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusExecuting
	}))

	_, err = s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	n, err := s.CountInFlight(ctx, types.RequestStatus.InFlight)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
