package prover

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestMockClientSubmitIsImmediatelyFulfilled(t *testing.T) {
	c := NewMockClient()
	h, err := c.Submit(context.Background(), SubmitRequest{Mode: ModeCompressed, Strategy: StrategyHosted})
	require.NoError(t, err)

	res, err := c.Status(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, res.Status)
	require.Equal(t, []byte{}, res.ProofBytes)
}

func TestMockClientStatusUnknownHandle(t *testing.T) {
	c := NewMockClient()
	res, err := c.Status(context.Background(), RequestHandle{ID: make([]byte, 16)})
	require.NoError(t, err)
	require.Equal(t, StatusUnfulfillable, res.Status)
}

func TestMockClientCancelThenStatus(t *testing.T) {
	c := NewMockClient()
	h, err := c.Submit(context.Background(), SubmitRequest{})
	require.NoError(t, err)
	require.NoError(t, c.Cancel(context.Background(), h))

	res, err := c.Status(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, StatusUnfulfillable, res.Status)
}

func TestMockClientNoAuctionPrices(t *testing.T) {
	c := NewMockClient()
	_, err := c.GetLatestPrices(context.Background())
	require.ErrorIs(t, err, ErrAuctionOnly)
}

func TestAuctionPolicyAllows(t *testing.T) {
	whitelisted := common.HexToAddress("0xaa")
	other := common.HexToAddress("0xbb")
	p := AuctionPolicy{MaxPricePerPGU: 100, Whitelist: []common.Address{whitelisted}}

	require.True(t, p.Allows(100))
	require.False(t, p.Allows(101))
	require.True(t, p.AllowsProver(whitelisted))
	require.False(t, p.AllowsProver(other))
}

func TestAuctionPolicyUnrestrictedByDefault(t *testing.T) {
	var p AuctionPolicy
	require.True(t, p.Allows(1_000_000))
	require.True(t, p.AllowsProver(common.HexToAddress("0xcc")))
}

// fakeTransport is a deterministic stand-in for the (out-of-scope) real
// proof network wire protocol.
type fakeTransport struct {
	quotes    []PriceQuote
	submitted int
}

func (f *fakeTransport) Submit(context.Context, SubmitRequest) (RequestHandle, error) {
	f.submitted++
	return RequestHandle{ID: []byte{byte(f.submitted)}}, nil
}

func (f *fakeTransport) Status(context.Context, RequestHandle) (StatusResult, error) {
	return StatusResult{Status: StatusFulfilled, ProofBytes: []byte{0x1}}, nil
}

func (f *fakeTransport) Cancel(context.Context, RequestHandle) error { return nil }

func (f *fakeTransport) LatestPrices(context.Context) ([]PriceQuote, error) {
	return f.quotes, nil
}

func TestNetworkClientRejectsAuctionAboveCap(t *testing.T) {
	tr := &fakeTransport{quotes: []PriceQuote{
		{Prover: common.HexToAddress("0x01"), PricePerPGU: 500},
	}}
	c := NewNetworkClient(log.NewLogger(log.DiscardHandler()), tr, AuctionPolicy{MaxPricePerPGU: 100})

	_, err := c.Submit(context.Background(), SubmitRequest{Strategy: StrategyAuction})
	require.Error(t, err)
	require.Equal(t, 0, tr.submitted)
}

func TestNetworkClientAllowsAuctionWithinCap(t *testing.T) {
	tr := &fakeTransport{quotes: []PriceQuote{
		{Prover: common.HexToAddress("0x01"), PricePerPGU: 50},
	}}
	c := NewNetworkClient(log.NewLogger(log.DiscardHandler()), tr, AuctionPolicy{MaxPricePerPGU: 100})

	_, err := c.Submit(context.Background(), SubmitRequest{Strategy: StrategyAuction})
	require.NoError(t, err)
	require.Equal(t, 1, tr.submitted)
}

func TestNetworkClientHostedSkipsAuctionCheck(t *testing.T) {
	tr := &fakeTransport{}
	c := NewNetworkClient(log.NewLogger(log.DiscardHandler()), tr, AuctionPolicy{MaxPricePerPGU: 100})

	_, err := c.Submit(context.Background(), SubmitRequest{Strategy: StrategyHosted})
	require.NoError(t, err)
	require.Equal(t, 1, tr.submitted)
}
