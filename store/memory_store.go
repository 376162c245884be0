package store

import (
	"context"
	"sort"
	"sync"

	"github.com/succinctlabs/op-succinct-go/types"
)

// MemoryStore is an in-process Store used by unit tests and by the proposer
// when no database DSN is configured. It applies the same CAS discipline as SQLStore so
// tests exercise the real concurrency contract.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  types.RequestID
	byID    map[types.RequestID]*types.Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[types.RequestID]*types.Request)}
}

func (s *MemoryStore) CreateRequest(_ context.Context, req *types.Request) (types.RequestID, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	cp := *req
	cp.ID = id
	s.byID[id] = &cp
	return id, nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id types.RequestID) (*types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) ListRequests(_ context.Context, filter Filter) ([]*types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusSet := make(map[types.RequestStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statusSet[st] = true
	}

	var out []*types.Request
	for _, req := range s.byID {
		if filter.Kind != nil && req.Kind != *filter.Kind {
			continue
		}
		if filter.Mode != nil && req.Mode != *filter.Mode {
			continue
		}
		if len(filter.Statuses) > 0 && !statusSet[req.Status] {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id types.RequestID, expectedPrior types.RequestStatus, mutate func(*types.Request)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != expectedPrior {
		return ErrStaleStatus
	}
	cp := *req
	mutate(&cp)
	s.byID[id] = &cp
	return nil
}

func (s *MemoryStore) CountInFlight(_ context.Context, pred func(types.RequestStatus) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.byID {
		if pred(req.Status) {
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
