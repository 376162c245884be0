// Package planner implements the Range Planner (component E, spec §4.4):
// it decides the next contiguous block range to request a proof for, given
// the on-chain-confirmed head, the highest in-flight range, and the
// finalized safe head ceiling.
package planner

import (
	"context"

	"github.com/succinctlabs/op-succinct-go/op-service/safemath"
	"github.com/succinctlabs/op-succinct-go/store"
	"github.com/succinctlabs/op-succinct-go/types"
)

// Heads bundles the three watermarks the planning algorithm needs (spec
// §4.4).
type Heads struct {
	// OnChain is the highest L2 block already confirmed by a Relayed
	// Aggregation request on-chain.
	OnChain uint64
	// InFlight is the highest L2 block end of any non-failed, non-cancelled
	// request already known to the store.
	InFlight uint64
	// Finalized is the L2 safe/finalized head; the planner never plans a
	// range whose end exceeds it.
	Finalized uint64
}

// Planner is the Range Planner.
type Planner struct {
	st            store.Store
	rangeInterval uint64
}

func NewPlanner(st store.Store, rangeInterval uint64) *Planner {
	return &Planner{st: st, rangeInterval: rangeInterval}
}

// NextRange computes the next Range request to create, or (0, 0, false) if
// no further progress can be made this tick (spec §4.4: never plan above the
// finalized head).
func NextRange(heads Heads, rangeInterval uint64) (start, end uint64, ok bool) {
	start = heads.OnChain
	if heads.InFlight > start {
		start = heads.InFlight
	}
	start++

	if start > heads.Finalized {
		return 0, 0, false
	}

	end = safemath.SaturatingAdd(start, rangeInterval)
	if end > heads.Finalized {
		end = heads.Finalized
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// Plan computes the next range (per NextRange) and, unless it already exists
// as a non-failed, non-cancelled request in the store (spec §4.4
// deduplication), creates it.
func (p *Planner) Plan(ctx context.Context, heads Heads) (*types.Request, error) {
	start, end, ok := NextRange(heads, p.rangeInterval)
	if !ok {
		return nil, nil
	}

	dup, err := p.duplicateExists(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, nil
	}

	req := &types.Request{
		Kind:       types.RequestKindRange,
		Mode:       types.RequestModeReal,
		StartBlock: start,
		EndBlock:   end,
		Status:     types.StatusUnrequested,
	}
	id, err := p.st.CreateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	req.ID = id
	return req, nil
}

func (p *Planner) duplicateExists(ctx context.Context, start, end uint64) (bool, error) {
	kind := types.RequestKindRange
	existing, err := p.st.ListRequests(ctx, store.Filter{
		Kind: &kind,
		Statuses: []types.RequestStatus{
			types.StatusUnrequested, types.StatusWitnessGen, types.StatusExecuting,
			types.StatusProving, types.StatusComplete, types.StatusRelayed,
		},
	})
	if err != nil {
		return false, err
	}
	for _, r := range existing {
		if r.StartBlock == start && r.EndBlock == end {
			return true, nil
		}
	}
	return false, nil
}
