// Package chaindata implements the Chain Data Fetcher (component A): a
// read-only view over L1 and L2 RPC endpoints used by the planner, pipeline,
// aggregator, and dispute game mirror to resolve headers, output roots, and
// safe-head derivation.
package chaindata

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/dial"
	"github.com/ethereum-optimism/optimism/op-service/eth"
	"github.com/ethereum-optimism/optimism/op-service/retry"

	"github.com/succinctlabs/op-succinct-go/types"
)

var errSafeDBUnavailable = types.ErrSafeDBUnavailable

// L1Client is the subset of an L1 JSON-RPC client the fetcher needs. It
// matches the shape used by the teacher's proposer driver (L1Client in
// driver.go), extended with HeaderByHash/BlockNumber for binary search.
type L1Client interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)

	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// L2Client is the subset of an L2 execution JSON-RPC client the fetcher
// needs: headers and chain id, plus the eth_getProof-backed account proof
// L2OutputRoot uses to read the L2ToL1MessagePasser storage root.
type L2Client interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error)
}

// RollupClient is the op-node RPC surface used for sync status and the
// optional safe-db lookup, mirroring RollupClient in the teacher's driver.go.
type RollupClient interface {
	SyncStatus(ctx context.Context) (*eth.SyncStatus, error)
	SafeHeadAtL2Block(ctx context.Context, l2Block uint64) (*SafeHeadResponse, error)
}

// SafeHeadResponse mirrors the op-node safedb endpoint's
// `safe_l1_head(l2_block)` response shape (spec §4.1).
type SafeHeadResponse struct {
	L1Block eth.L1BlockRef
	L2Block uint64
}

// RetryPolicy is op-service's default retry.Exponential() strategy, used for
// at most maxRetryAttempts attempts per call. Its delays and jitter are that
// strategy's defaults: it does not start at 500ms and does not follow a 30s
// cap or a 100ms jitter bound. It is exposed so callers can override it in
// tests without waiting out real backoff.
var RetryPolicy = retry.Exponential()

const (
	maxRetryAttempts = 5
	initialBackoff   = 500 // milliseconds; not read by RetryPolicy or retry.Do
)

// messagePasserAddr is the predeploy address of the L2ToL1MessagePasser
// contract, whose storage root is folded into the output root (spec
// "Output root" glossary entry).
var messagePasserAddr = common.HexToAddress("0x4200000000000000000000000000000000000016")

// Fetcher is the concrete Chain Data Fetcher.
type Fetcher struct {
	log log.Logger

	l1     L1Client
	l2     L2Client
	rollup dial.RollupProvider

	l1ChainID *big.Int
	l2ChainID *big.Int
}

func NewFetcher(l log.Logger, l1 L1Client, l2 L2Client, rollup dial.RollupProvider) *Fetcher {
	return &Fetcher{log: l, l1: l1, l2: l2, rollup: rollup}
}

// L1ChainID returns the L1 chain id, caching it on first call (spec §4.1
// supplement: cached once at startup, reused for boot-info ABI encoding,
// matching the original Rust data_fetcher.rs pattern).
func (f *Fetcher) L1ChainID(ctx context.Context) (*big.Int, error) {
	if f.l1ChainID != nil {
		return f.l1ChainID, nil
	}
	id, err := retryWithBackoff(ctx, func() (*big.Int, error) {
		return f.l1.ChainID(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching L1 chain id: %w", err)
	}
	f.l1ChainID = id
	return id, nil
}

// L2ChainID returns the L2 chain id, caching it on first call.
func (f *Fetcher) L2ChainID(ctx context.Context) (*big.Int, error) {
	if f.l2ChainID != nil {
		return f.l2ChainID, nil
	}
	id, err := retryWithBackoff(ctx, func() (*big.Int, error) {
		return f.l2.ChainID(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching L2 chain id: %w", err)
	}
	f.l2ChainID = id
	return id, nil
}

// L1Header fetches an L1 header by number. A nil number means "latest".
func (f *Fetcher) L1Header(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retryWithBackoff(ctx, func() (*types.Header, error) {
		return f.l1.HeaderByNumber(ctx, number)
	})
}

// L1HeaderByHash fetches an L1 header by hash.
func (f *Fetcher) L1HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return retryWithBackoff(ctx, func() (*types.Header, error) {
		return f.l1.HeaderByHash(ctx, hash)
	})
}

// L2Header fetches an L2 header by number. A nil number means "latest".
func (f *Fetcher) L2Header(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retryWithBackoff(ctx, func() (*types.Header, error) {
		return f.l2.HeaderByNumber(ctx, number)
	})
}

// L2OutputRoot computes the L2 output root at block, per spec §4.1:
// keccak256(0u64_be(8) || state_root || l2ToL1MessagePasser_storage_root ||
// block_hash). This is the concrete byte layout behind spec.md's "Output
// root" glossary entry and the original source's compute_output_root_at_block.
func (f *Fetcher) L2OutputRoot(ctx context.Context, block uint64) (common.Hash, error) {
	header, err := f.L2Header(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching L2 header for output root: %w", err)
	}
	storageRoot, err := f.messagePasserStorageRoot(ctx, header)
	if err != nil {
		return common.Hash{}, err
	}
	return OutputRootAtBlock(header.Root, storageRoot, header.Hash()), nil
}

// messagePasserStorageRoot is split out so tests can stub it without a full
// eth_getProof client.
func (f *Fetcher) messagePasserStorageRoot(ctx context.Context, header *types.Header) (common.Hash, error) {
	return retryWithBackoff(ctx, func() (common.Hash, error) {
		return fetchMessagePasserStorageRoot(ctx, f.l2, header)
	})
}

// fetchMessagePasserStorageRoot is a package-level hook so tests can
// substitute a fake without implementing the full L2Client interface. The
// default, used in production, calls eth_getProof for the
// L2ToL1MessagePasser predeploy with no storage keys and reads back
// AccountResult.StorageHash - the account's current storage root, the
// middle component of the output root preimage (spec §4.1).
var fetchMessagePasserStorageRoot = func(ctx context.Context, l2 L2Client, header *types.Header) (common.Hash, error) {
	proof, err := l2.GetProof(ctx, messagePasserAddr, nil, header.Number)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching L2ToL1MessagePasser account proof: %w", err)
	}
	return proof.StorageHash, nil
}

// OutputRootAtBlock packs the three components into the keccak256 preimage
// and hashes it (spec §4.1, original source's compute_output_root_at_block).
func OutputRootAtBlock(stateRoot, storageRoot, blockHash common.Hash) common.Hash {
	var buf [8 + 32 + 32 + 32]byte
	// first 8 bytes are the big-endian L2Output version, always zero today
	copy(buf[8:40], stateRoot[:])
	copy(buf[40:72], storageRoot[:])
	copy(buf[72:104], blockHash[:])
	return crypto.Keccak256Hash(buf[:])
}

// FindBlockByTimestamp binary searches L1 headers for the smallest block
// with timestamp >= t (spec §4.1).
func (f *Fetcher) FindBlockByTimestamp(ctx context.Context, t uint64) (*types.Header, error) {
	latest, err := f.L1Header(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("finding block by timestamp: fetching latest header: %w", err)
	}
	if latest.Time < t {
		return nil, fmt.Errorf("finding block by timestamp: timestamp %d is after the chain head (time %d)", t, latest.Time)
	}

	lo, hi := uint64(0), latest.Number.Uint64()
	var result *types.Header
	for lo <= hi {
		mid := lo + (hi-lo)/2
		h, err := f.L1Header(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return nil, fmt.Errorf("finding block by timestamp: fetching header %d: %w", mid, err)
		}
		if h.Time >= t {
			result = h
			if mid == 0 {
				break
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if result == nil {
		return nil, fmt.Errorf("finding block by timestamp: no block with timestamp >= %d", t)
	}
	return result, nil
}

// SafeL2Head returns the op-node-reported safe L2 block number, the ceiling
// the Proposer Loop (spec §4.8 step 2) compares canonical_head.l2_block
// against before creating a new game.
func (f *Fetcher) SafeL2Head(ctx context.Context) (uint64, error) {
	rollupClient, err := f.rollup.RollupClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("safe l2 head: getting rollup client: %w", err)
	}
	rc, ok := rollupClient.(RollupClient)
	if !ok {
		return 0, fmt.Errorf("safe l2 head: rollup client does not implement sync status lookups")
	}
	status, err := rc.SyncStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("safe l2 head: fetching sync status: %w", err)
	}
	return status.SafeL2.Number, nil
}

// SafeL1HeadFallbackDelta is the fixed small offset past the derivation head
// used when fallbackAllowed is set and no safe-db endpoint is reachable
// (spec §4.1).
const SafeL1HeadFallbackDelta = 10

// SafeL1Head resolves the L1 block from which l2Block can be derived (spec
// §4.1): prefer the op-node safe-db endpoint's reported L1 origin; if
// unavailable and fallbackAllowed, offset by SafeL1HeadFallbackDelta past
// the current derivation head; otherwise return ErrSafeDBUnavailable.
func (f *Fetcher) SafeL1Head(ctx context.Context, l2Block uint64, fallbackAllowed bool) (eth.L1BlockRef, error) {
	rollupClient, err := f.rollup.RollupClient(ctx)
	if err != nil {
		return eth.L1BlockRef{}, fmt.Errorf("safe l1 head: getting rollup client: %w", err)
	}
	rc, ok := rollupClient.(RollupClient)
	if !ok {
		return eth.L1BlockRef{}, fmt.Errorf("safe l1 head: rollup client does not implement safe-db lookups")
	}

	resp, err := rc.SafeHeadAtL2Block(ctx, l2Block)
	if err == nil {
		return resp.L1Block, nil
	}
	f.log.Debug("safe-db lookup unavailable, considering fallback", "l2_block", l2Block, "err", err)

	if !fallbackAllowed {
		return eth.L1BlockRef{}, errSafeDBUnavailable
	}

	status, err := rc.SyncStatus(ctx)
	if err != nil {
		return eth.L1BlockRef{}, fmt.Errorf("safe l1 head: fetching sync status for fallback: %w", err)
	}
	head := status.HeadL1
	if head.Number <= SafeL1HeadFallbackDelta {
		return head, nil
	}
	fallbackNumber := head.Number - SafeL1HeadFallbackDelta
	header, err := f.L1Header(ctx, new(big.Int).SetUint64(fallbackNumber))
	if err != nil {
		return eth.L1BlockRef{}, fmt.Errorf("safe l1 head: fetching fallback header %d: %w", fallbackNumber, err)
	}
	return eth.L1BlockRef{Hash: header.Hash(), Number: header.Number.Uint64(), Time: header.Time}, nil
}

func retryWithBackoff[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.Do(ctx, maxRetryAttempts, RetryPolicy, func() (T, error) {
		return fn()
	})
}
