// Package store persists allocations, overrides, and the cached game set.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

var (
	// ErrNotFound is returned when an allocation id is unknown.
	ErrNotFound = errors.New("allocation not found")
	// ErrExists is returned when creating an allocation whose id is taken.
	ErrExists = errors.New("allocation already exists")
)

// SourceHeldError is returned when a new holding allocation would share a
// source with another pending or active allocation.
type SourceHeldError struct {
	SourceID     string
	AllocationID string
}

func (e *SourceHeldError) Error() string {
	return fmt.Sprintf("source %s already held by allocation %s", e.SourceID, e.AllocationID)
}

// AllocationStore is the durable record of source bindings.
// Update enforces the lifecycle state machine; terminal records are immutable.
type AllocationStore interface {
	Create(ctx context.Context, a allocations.Allocation) error
	Get(ctx context.Context, id string) (allocations.Allocation, error)
	Update(ctx context.Context, id string, mutate func(*allocations.Allocation) error) (allocations.Allocation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]allocations.Allocation, error)
	ActiveOverlapping(ctx context.Context, window timeutil.Window) ([]allocations.Allocation, error)
	ActiveForSource(ctx context.Context, sourceID string) (allocations.Allocation, bool, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses []allocations.Status
	GameID   string
	SourceID string
}

// Holding matches pending and active allocations.
func Holding() Filter {
	return Filter{Statuses: []allocations.Status{allocations.StatusPending, allocations.StatusActive}}
}

// Matches reports whether a passes the filter.
func (f Filter) Matches(a allocations.Allocation) bool {
	if f.GameID != "" && a.GameID != f.GameID {
		return false
	}
	if f.SourceID != "" && a.SourceID != f.SourceID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

func validateNew(a allocations.Allocation) error {
	if a.ID == "" {
		return errors.New("allocation id required")
	}
	if a.SourceID == "" || a.GameID == "" {
		return fmt.Errorf("allocation %s: source and game required", a.ID)
	}
	if !a.Status.IsHolding() {
		return &allocations.InvalidTransitionError{AllocationID: a.ID, From: a.Status, To: a.Status}
	}
	return nil
}

// applyUpdate runs mutate on a copy of current and validates the result.
func applyUpdate(current allocations.Allocation, mutate func(*allocations.Allocation) error) (allocations.Allocation, error) {
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return allocations.Allocation{}, err
	}
	if current.Status.IsTerminal() {
		return allocations.Allocation{}, &allocations.InvalidTransitionError{
			AllocationID: current.ID,
			From:         current.Status,
			To:           next.Status,
		}
	}
	if next.Status != current.Status && !allocations.CanTransition(current.Status, next.Status) {
		return allocations.Allocation{}, &allocations.InvalidTransitionError{
			AllocationID: current.ID,
			From:         current.Status,
			To:           next.Status,
		}
	}
	next.ID = current.ID
	next.DisplayCount = len(next.Displays)
	return next, nil
}

// Transition returns a mutate func that moves an allocation to status,
// stamping ActuallyFreedAt for terminal states.
func Transition(to allocations.Status, at time.Time, reason string) func(*allocations.Allocation) error {
	return func(a *allocations.Allocation) error {
		a.Status = to
		if reason != "" {
			a.Reason = reason
		}
		if to.IsTerminal() {
			freed := at
			a.ActuallyFreedAt = &freed
		}
		return nil
	}
}

// SortByAllocatedAt orders allocations oldest first, then by id.
func SortByAllocatedAt(list []allocations.Allocation) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].AllocatedAt.Equal(list[j].AllocatedAt) {
			return list[i].AllocatedAt.Before(list[j].AllocatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func overlapping(list []allocations.Allocation, window timeutil.Window) []allocations.Allocation {
	out := make([]allocations.Allocation, 0, len(list))
	for _, a := range list {
		if a.Window().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out
}
