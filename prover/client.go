// Package prover implements the Proof Network Client (component B): the
// request/poll/fetch contract spec.md §4.2 requires. The zkVM network wire
// protocol itself is out of scope (spec.md §1 non-goals); this package only
// implements the submit/status/cancel/price surface a caller needs.
package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ProofMode selects the proof system the network is asked to produce (spec
// §4.2).
type ProofMode int

const (
	ModeCompressed ProofMode = iota
	ModeGroth16
	ModePlonk
)

// Strategy selects how the network prices and assigns the request (spec
// §4.2).
type Strategy int

const (
	StrategyHosted Strategy = iota
	StrategyReserved
	StrategyAuction
)

// RequestHandle is the opaque, idempotent handle returned by Submit. Network
// errors observed after a handle is issued but before a Status call MUST NOT
// be read as failure (spec §4.2's idempotency contract) — callers must
// re-poll Status using the handle rather than resubmit.
type RequestHandle struct {
	ID []byte
}

// FulfillmentStatus is the tri-state result of Status (spec §4.2).
type FulfillmentStatus int

const (
	StatusPending FulfillmentStatus = iota
	StatusFulfilled
	StatusUnfulfillable
)

// StatusResult carries the outcome of a Status poll.
type StatusResult struct {
	Status     FulfillmentStatus
	ProofBytes []byte // set only when Status == StatusFulfilled
	Reason     string // set only when Status == StatusUnfulfillable
}

// SubmitRequest bundles the parameters of a proof submission (spec §4.2).
type SubmitRequest struct {
	ProgramID  []byte
	StdinBytes []byte
	Mode       ProofMode
	Strategy   Strategy
	Vkey       []byte
}

// PriceQuote is one entry of GetLatestPrices (auction strategy only).
type PriceQuote struct {
	Prover        common.Address
	PricePerPGU   uint64
}

// Client is the Proof Network Client contract.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (RequestHandle, error)
	Status(ctx context.Context, h RequestHandle) (StatusResult, error)
	Cancel(ctx context.Context, h RequestHandle) error
	GetLatestPrices(ctx context.Context) ([]PriceQuote, error)
}

// ErrAuctionOnly is returned by GetLatestPrices implementations that only
// support the Auction strategy when called in a context where no auction
// is configured.
var ErrAuctionOnly = errors.New("prover: latest prices are only available for the auction strategy")

// MockClient bypasses the network entirely and synthesizes a deterministic
// empty proof immediately on Submit, per spec §4.2's Mock-mode contract.
// Status on any handle it issued always reports Fulfilled right away.
type MockClient struct {
	mu       sync.Mutex
	fulfilled map[string][]byte
}

func NewMockClient() *MockClient {
	return &MockClient{fulfilled: make(map[string][]byte)}
}

func (m *MockClient) Submit(_ context.Context, _ SubmitRequest) (RequestHandle, error) {
	id := uuid.New()
	m.mu.Lock()
	m.fulfilled[id.String()] = []byte{}
	m.mu.Unlock()
	return RequestHandle{ID: id[:]}, nil
}

func (m *MockClient) Status(_ context.Context, h RequestHandle) (StatusResult, error) {
	id, err := uuid.FromBytes(h.ID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("mock client: invalid handle: %w", err)
	}
	m.mu.Lock()
	proof, ok := m.fulfilled[id.String()]
	m.mu.Unlock()
	if !ok {
		return StatusResult{Status: StatusUnfulfillable, Reason: "unknown handle"}, nil
	}
	return StatusResult{Status: StatusFulfilled, ProofBytes: proof}, nil
}

func (m *MockClient) Cancel(_ context.Context, h RequestHandle) error {
	id, err := uuid.FromBytes(h.ID)
	if err != nil {
		return fmt.Errorf("mock client: invalid handle: %w", err)
	}
	m.mu.Lock()
	delete(m.fulfilled, id.String())
	m.mu.Unlock()
	return nil
}

func (m *MockClient) GetLatestPrices(context.Context) ([]PriceQuote, error) {
	return nil, ErrAuctionOnly
}

var _ Client = (*MockClient)(nil)
