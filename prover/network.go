package prover

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/retry"
)

// AuctionPolicy is the supplemented price-capped-auction / whitelist
// behavior from original_source's fault-proof/src/config.rs
// (MAX_PRICE_PER_PGU, MIN_AUCTION_PERIOD, WHITELIST), applied by
// NetworkClient before an Auction-strategy submission goes out.
type AuctionPolicy struct {
	// MaxPricePerPGU caps the price (in wei-per-proof-gas-unit) the network
	// may charge; a submission whose best quote exceeds this is rejected
	// rather than sent.
	MaxPricePerPGU uint64
	// MinAuctionPeriod is the minimum auction window in seconds.
	MinAuctionPeriod uint64
	// Whitelist restricts which prover addresses may fulfil the request; a
	// nil slice means no restriction (matches parse_whitelist's None case).
	Whitelist []common.Address
}

// Allows reports whether price is acceptable under the policy.
func (p AuctionPolicy) Allows(price uint64) bool {
	if p.MaxPricePerPGU == 0 {
		return true
	}
	return price <= p.MaxPricePerPGU
}

// AllowsProver reports whether prover is eligible to fulfil under the
// whitelist. An empty whitelist means unrestricted.
func (p AuctionPolicy) AllowsProver(prover common.Address) bool {
	if len(p.Whitelist) == 0 {
		return true
	}
	for _, addr := range p.Whitelist {
		if addr == prover {
			return true
		}
	}
	return false
}

// Transport is the subset of an HTTP-speaking proof network SDK client the
// NetworkClient needs. It is intentionally narrow: the zkVM network wire
// protocol is out of scope (spec §1 non-goals), so this interface only
// shapes the request/poll/fetch/price contract spec §4.2 requires.
type Transport interface {
	Submit(ctx context.Context, req SubmitRequest) (RequestHandle, error)
	Status(ctx context.Context, h RequestHandle) (StatusResult, error)
	Cancel(ctx context.Context, h RequestHandle) error
	LatestPrices(ctx context.Context) ([]PriceQuote, error)
}

// NetworkClient is the real external proof network client: it wraps a
// Transport with op-service/retry backoff and applies AuctionPolicy checks
// before Auction-strategy submissions (spec §4.2, supplemented per §7).
type NetworkClient struct {
	log     log.Logger
	tr      Transport
	policy  AuctionPolicy
	retries int
}

func NewNetworkClient(l log.Logger, tr Transport, policy AuctionPolicy) *NetworkClient {
	return &NetworkClient{log: l, tr: tr, policy: policy, retries: 5}
}

func (c *NetworkClient) Submit(ctx context.Context, req SubmitRequest) (RequestHandle, error) {
	if req.Strategy == StrategyAuction {
		quotes, err := c.tr.LatestPrices(ctx)
		if err != nil {
			return RequestHandle{}, fmt.Errorf("fetching latest prices before auction submit: %w", err)
		}
		if err := c.checkAuctionQuotes(quotes); err != nil {
			return RequestHandle{}, err
		}
	}

	return retry.Do(ctx, c.retries, retry.Exponential(), func() (RequestHandle, error) {
		return c.tr.Submit(ctx, req)
	})
}

func (c *NetworkClient) checkAuctionQuotes(quotes []PriceQuote) error {
	if len(quotes) == 0 {
		return fmt.Errorf("auction submit: no prover quotes available")
	}
	var eligible bool
	for _, q := range quotes {
		if !c.policy.AllowsProver(q.Prover) {
			continue
		}
		if !c.policy.Allows(q.PricePerPGU) {
			continue
		}
		eligible = true
		break
	}
	if !eligible {
		return fmt.Errorf("auction submit: no quote within price cap %d / whitelist", c.policy.MaxPricePerPGU)
	}
	return nil
}

// Status re-polls Status using the handle. Per spec §4.2's idempotency
// contract, a transport-level error here must never be interpreted by the
// caller as request failure; it is wrapped and returned as-is so callers
// retry the poll rather than resubmitting.
func (c *NetworkClient) Status(ctx context.Context, h RequestHandle) (StatusResult, error) {
	return retry.Do(ctx, c.retries, retry.Exponential(), func() (StatusResult, error) {
		return c.tr.Status(ctx, h)
	})
}

// Cancel is best-effort (spec §4.2): failures are logged, not propagated as
// fatal, since a game/request in flight should still proceed to its natural
// terminal state if cancellation fails.
func (c *NetworkClient) Cancel(ctx context.Context, h RequestHandle) error {
	if err := c.tr.Cancel(ctx, h); err != nil {
		c.log.Warn("best-effort proof cancellation failed", "err", err)
	}
	return nil
}

func (c *NetworkClient) GetLatestPrices(ctx context.Context) ([]PriceQuote, error) {
	return c.tr.LatestPrices(ctx)
}

var _ Client = (*NetworkClient)(nil)
