// Package store implements the Request Store (component D, spec §3, §6.2):
// a durable queue of proof requests with status, timing, and artifacts.
//
// Per the source-shape note in spec §9, row-at-a-time update queries under
// concurrent polling risk write skew. This package closes that gap with a
// compare-and-swap update gated on the row's prior status, rather than an
// advisory lock: every status transition names the status it expects to
// observe and fails (ErrStaleStatus) if another writer already moved the
// row, so the pipeline's recovery and polling loops can retry instead of
// corrupting state.
package store

import (
	"context"
	"errors"

	"github.com/succinctlabs/op-succinct-go/types"
)

// ErrStaleStatus is returned by UpdateStatus when the row's current status
// no longer matches the caller's expected prior status — a concurrent
// writer won the race.
var ErrStaleStatus = errors.New("store: request status changed concurrently")

// ErrNotFound is returned when a request id does not exist in the store.
var ErrNotFound = errors.New("store: request not found")

// Filter narrows ListRequests queries. A nil field means "don't filter on
// this column", mirroring the optional WHERE clauses a hand-rolled query
// builder would emit over the logical schema in spec §6.2.
type Filter struct {
	Kind     *types.RequestKind
	Statuses []types.RequestStatus
	Mode     *types.RequestMode
}

// Store is the durable queue of proof requests. Implementations must
// serialize concurrent status transitions per-row (spec §5 "Ordering
// guarantees"); see UpdateStatus.
type Store interface {
	// CreateRequest inserts a new Unrequested row and assigns its ID.
	CreateRequest(ctx context.Context, req *types.Request) (types.RequestID, error)

	// GetRequest fetches a single request by id.
	GetRequest(ctx context.Context, id types.RequestID) (*types.Request, error)

	// ListRequests returns requests matching filter, oldest first.
	ListRequests(ctx context.Context, filter Filter) ([]*types.Request, error)

	// UpdateStatus performs a compare-and-swap transition: it succeeds only
	// if the row's current status equals expectedPrior, then applies mutate
	// to the in-memory copy and persists it with the new status set by
	// mutate. Returns ErrStaleStatus on a lost race, ErrNotFound if the row
	// is gone.
	UpdateStatus(ctx context.Context, id types.RequestID, expectedPrior types.RequestStatus, mutate func(*types.Request)) error

	// CountInFlight returns the number of requests whose status satisfies
	// pred, used by the planner/pipeline concurrency gates (spec §4.3).
	CountInFlight(ctx context.Context, pred func(types.RequestStatus) bool) (int, error)
}
