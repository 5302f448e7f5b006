// Package overrides tracks displays an operator has taken manual control of.
package overrides

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
)

// ErrInvalidOverride is returned when an override has no display or an expiry in the past.
var ErrInvalidOverride = errors.New("override requires a display id and a future expiry")

// Store persists overrides. Implementations: MemoryStore and store.BoltStore.
type Store interface {
	SetOverride(ctx context.Context, o displays.ManualOverride) error
	ClearOverride(ctx context.Context, displayID string) error
	GetOverride(ctx context.Context, displayID string) (displays.ManualOverride, bool, error)
	ListOverrides(ctx context.Context) ([]displays.ManualOverride, error)
}

// Service answers whether displays are under manual control.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wraps a Store. A nil clock defaults to time.Now.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Set records that by took manual control of displayID until until.
func (s *Service) Set(ctx context.Context, displayID string, until time.Time, by string) (displays.ManualOverride, error) {
	now := s.now()
	if displayID == "" || !until.After(now) {
		return displays.ManualOverride{}, ErrInvalidOverride
	}
	o := displays.ManualOverride{
		DisplayID:           displayID,
		ManualOverrideUntil: until,
		LastManualChangeBy:  by,
		LastManualChangeAt:  now,
	}
	if err := s.store.SetOverride(ctx, o); err != nil {
		return displays.ManualOverride{}, err
	}
	return o, nil
}

// Clear ends manual control of displayID.
func (s *Service) Clear(ctx context.Context, displayID string) error {
	return s.store.ClearOverride(ctx, displayID)
}

// IsOverridden reports whether displayID is guarded at now.
func (s *Service) IsOverridden(ctx context.Context, displayID string, now time.Time) (bool, error) {
	o, ok, err := s.store.GetOverride(ctx, displayID)
	if err != nil || !ok {
		return false, err
	}
	return o.ActiveAt(now), nil
}

// ActiveSet returns the ids of displays guarded at now.
func (s *Service) ActiveSet(ctx context.Context, now time.Time) (map[string]bool, error) {
	list, err := s.store.ListOverrides(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(list))
	for _, o := range list {
		if o.ActiveAt(now) {
			active[o.DisplayID] = true
		}
	}
	return active, nil
}

// Active returns overrides still in force at the service clock.
func (s *Service) Active(ctx context.Context) ([]displays.ManualOverride, error) {
	list, err := s.store.ListOverrides(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]displays.ManualOverride, 0, len(list))
	for _, o := range list {
		if o.ActiveAt(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// MemoryStore keeps overrides in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	overrides map[string]displays.ManualOverride
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{overrides: make(map[string]displays.ManualOverride)}
}

func (m *MemoryStore) SetOverride(ctx context.Context, o displays.ManualOverride) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.DisplayID] = o
	return nil
}

func (m *MemoryStore) ClearOverride(ctx context.Context, displayID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, displayID)
	return nil
}

func (m *MemoryStore) GetOverride(ctx context.Context, displayID string) (displays.ManualOverride, bool, error) {
	if err := ctx.Err(); err != nil {
		return displays.ManualOverride{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.overrides[displayID]
	return o, ok, nil
}

func (m *MemoryStore) ListOverrides(ctx context.Context) ([]displays.ManualOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]displays.ManualOverride, 0, len(m.overrides))
	for _, o := range m.overrides {
		out = append(out, o)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayID < out[j].DisplayID })
	return out, nil
}
