package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/succinctlabs/op-succinct-go/types"
)

func newTestRequest() *types.Request {
	return &types.Request{
		Kind:       types.RequestKindRange,
		Mode:       types.RequestModeMock,
		StartBlock: 100,
		EndBlock:   200,
		Status:     types.StatusUnrequested,
		VkeyCommitments: types.VkeyCommitments{
			RangeVkeyCommitment: common.HexToHash("0x01"),
		},
		L1ChainID: 1,
		L2ChainID: 10,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusUnrequested, got.Status)
	require.Equal(t, uint64(100), got.StartBlock)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetRequest(context.Background(), types.RequestID(999))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreInvalidRangeRejected(t *testing.T) {
	s := NewMemoryStore()
	req := newTestRequest()
	req.StartBlock = 200
	req.EndBlock = 100
	_, err := s.CreateRequest(context.Background(), req)
	require.ErrorIs(t, err, types.ErrInvalidRange)
}

func TestMemoryStoreUpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	t.Run("succeeds against the current status", func(t *testing.T) {
		err := s.UpdateStatus(ctx, id, types.StatusUnrequested, func(r *types.Request) {
			r.Status = types.StatusWitnessGen
		})
		require.NoError(t, err)

		got, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		require.Equal(t, types.StatusWitnessGen, got.Status)
	})

	t.Run("fails against a stale status", func(t *testing.T) {
		err := s.UpdateStatus(ctx, id, types.StatusUnrequested, func(r *types.Request) {
			r.Status = types.StatusFailed
		})
		require.ErrorIs(t, err, ErrStaleStatus)

		got, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		require.Equal(t, types.StatusWitnessGen, got.Status, "losing writer must not apply its mutation")
	})

	t.Run("unknown id", func(t *testing.T) {
		err := s.UpdateStatus(ctx, types.RequestID(12345), types.StatusUnrequested, func(r *types.Request) {})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStoreListRequestsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

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

func TestMemoryStoreCountInFlight(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

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
