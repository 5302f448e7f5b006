package store

import (
	"context"
	"sync"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

// MemoryAllocationStore keeps allocations in memory behind a RWMutex.
type MemoryAllocationStore struct {
	mu          sync.RWMutex
	allocations map[string]allocations.Allocation
}

// NewMemoryAllocationStore constructs an empty store.
func NewMemoryAllocationStore() *MemoryAllocationStore {
	return &MemoryAllocationStore{
		allocations: make(map[string]allocations.Allocation),
	}
}

// Create inserts a new pending or active allocation.
func (s *MemoryAllocationStore) Create(ctx context.Context, a allocations.Allocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateNew(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allocations[a.ID]; ok {
		return ErrExists
	}
	for _, existing := range s.allocations {
		if existing.SourceID == a.SourceID && existing.Status.IsHolding() {
			return &SourceHeldError{SourceID: a.SourceID, AllocationID: existing.ID}
		}
	}
	a.DisplayCount = len(a.Displays)
	s.allocations[a.ID] = a.Clone()
	return nil
}

// Get retrieves an allocation by id.
func (s *MemoryAllocationStore) Get(ctx context.Context, id string) (allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return allocations.Allocation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.allocations[id]
	if !ok {
		return allocations.Allocation{}, ErrNotFound
	}
	return a.Clone(), nil
}

// Update applies mutate atomically, rejecting illegal transitions.
func (s *MemoryAllocationStore) Update(ctx context.Context, id string, mutate func(*allocations.Allocation) error) (allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return allocations.Allocation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.allocations[id]
	if !ok {
		return allocations.Allocation{}, ErrNotFound
	}
	next, err := applyUpdate(current, mutate)
	if err != nil {
		return allocations.Allocation{}, err
	}
	s.allocations[id] = next
	return next.Clone(), nil
}

// Delete removes an allocation; deleting an unknown id returns ErrNotFound.
func (s *MemoryAllocationStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allocations[id]; !ok {
		return ErrNotFound
	}
	delete(s.allocations, id)
	return nil
}

// List returns copies of matching allocations ordered by AllocatedAt then id.
func (s *MemoryAllocationStore) List(ctx context.Context, filter Filter) ([]allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := make([]allocations.Allocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		if filter.Matches(a) {
			result = append(result, a.Clone())
		}
	}
	s.mu.RUnlock()

	SortByAllocatedAt(result)
	return result, nil
}

// ActiveOverlapping returns pending or active allocations whose hold window overlaps window.
func (s *MemoryAllocationStore) ActiveOverlapping(ctx context.Context, window timeutil.Window) ([]allocations.Allocation, error) {
	holding, err := s.List(ctx, Holding())
	if err != nil {
		return nil, err
	}
	return overlapping(holding, window), nil
}

// ActiveForSource returns the pending or active allocation on the source.
func (s *MemoryAllocationStore) ActiveForSource(ctx context.Context, sourceID string) (allocations.Allocation, bool, error) {
	filter := Holding()
	filter.SourceID = sourceID
	list, err := s.List(ctx, filter)
	if err != nil || len(list) == 0 {
		return allocations.Allocation{}, false, err
	}
	return list[0], true, nil
}
