package submitter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/store"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

type fakeTxSender struct {
	receipt *types.Receipt
	err     error
	sent    []txmgr.TxCandidate
}

func (f *fakeTxSender) Send(_ context.Context, candidate txmgr.TxCandidate) (*types.Receipt, error) {
	f.sent = append(f.sent, candidate)
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func completeAggregation(t *testing.T, st store.Store, mode succinctTypes.RequestMode) *succinctTypes.Request {
	t.Helper()
	req := &succinctTypes.Request{
		Kind:       succinctTypes.RequestKindAggregation,
		Mode:       mode,
		StartBlock: 0,
		EndBlock:   100,
		Status:     succinctTypes.StatusUnrequested,
		Artifact:   []byte("proof"),
	}
	id, err := st.CreateRequest(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(context.Background(), id, succinctTypes.StatusUnrequested, func(r *succinctTypes.Request) {
		r.Status = succinctTypes.StatusComplete
	}))
	req.ID = id
	req.Status = succinctTypes.StatusComplete
	return req
}

func newSubmitter(t *testing.T, st store.Store, sender TxSender) *Submitter {
	t.Helper()
	oo, err := bindings.NewOPSuccinctL2OutputOracleTransactor()
	require.NoError(t, err)
	return NewSubmitter(log.NewLogger(log.DiscardHandler()), st, sender, oo, common.HexToAddress("0x1234"), Config{
		NumConfirmations: 1,
		ConfirmTimeout:   time.Second,
	}, nil)
}

func TestPopNextRelayableSkipsMockMode(t *testing.T) {
	st := store.NewMemoryStore()
	completeAggregation(t, st, succinctTypes.RequestModeMock)
	real := completeAggregation(t, st, succinctTypes.RequestModeReal)

	s := newSubmitter(t, st, &fakeTxSender{})
	got, err := s.PopNextRelayable(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, real.ID, got.ID)
}

func TestPopNextRelayableNoneReady(t *testing.T) {
	st := store.NewMemoryStore()
	completeAggregation(t, st, succinctTypes.RequestModeMock)

	s := newSubmitter(t, st, &fakeTxSender{})
	got, err := s.PopNextRelayable(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSubmitAdvancesToRelayedOnSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	req := completeAggregation(t, st, succinctTypes.RequestModeReal)

	sender := &fakeTxSender{receipt: &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            common.HexToHash("0xabc"),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}}
	s := newSubmitter(t, st, sender)

	err := s.Submit(context.Background(), req, common.HexToHash("0xdead"), 42, common.HexToAddress("0xbeef"))
	require.NoError(t, err)

	got, err := st.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, succinctTypes.StatusRelayed, got.Status)
	require.Equal(t, common.HexToHash("0xabc"), *got.RelayTxHash)
	require.Equal(t, int64(1), got.TotalTxs)
	require.Equal(t, big.NewInt(21000*1_000_000_000), got.TotalTxFees)

	require.Len(t, sender.sent, 1)
	require.Equal(t, common.HexToAddress("0x1234"), *sender.sent[0].To)
}

func TestSubmitLeavesCompleteOnRevert(t *testing.T) {
	st := store.NewMemoryStore()
	req := completeAggregation(t, st, succinctTypes.RequestModeReal)

	sender := &fakeTxSender{receipt: &types.Receipt{
		Status:            types.ReceiptStatusFailed,
		TxHash:            common.HexToHash("0xabc"),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}}
	s := newSubmitter(t, st, sender)

	err := s.Submit(context.Background(), req, common.HexToHash("0xdead"), 42, common.HexToAddress("0xbeef"))
	require.NoError(t, err)

	got, err := st.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, succinctTypes.StatusComplete, got.Status)
}

func TestSubmitLeavesCompleteOnSendError(t *testing.T) {
	st := store.NewMemoryStore()
	req := completeAggregation(t, st, succinctTypes.RequestModeReal)

	sender := &fakeTxSender{err: errors.New("timed out waiting for confirmation")}
	s := newSubmitter(t, st, sender)

	err := s.Submit(context.Background(), req, common.HexToHash("0xdead"), 42, common.HexToAddress("0xbeef"))
	require.NoError(t, err)

	got, err := st.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, succinctTypes.StatusComplete, got.Status)
}

func TestSubmitRejectsMockModeRequest(t *testing.T) {
	st := store.NewMemoryStore()
	req := completeAggregation(t, st, succinctTypes.RequestModeMock)

	s := newSubmitter(t, st, &fakeTxSender{})
	err := s.Submit(context.Background(), req, common.HexToHash("0xdead"), 42, common.HexToAddress("0xbeef"))
	require.Error(t, err)
}

func TestSubmitRejectsNonAggregationRequest(t *testing.T) {
	st := store.NewMemoryStore()
	req := &succinctTypes.Request{Kind: succinctTypes.RequestKindRange, Mode: succinctTypes.RequestModeReal}

	s := newSubmitter(t, st, &fakeTxSender{})
	err := s.Submit(context.Background(), req, common.HexToHash("0xdead"), 42, common.HexToAddress("0xbeef"))
	require.Error(t, err)
}
