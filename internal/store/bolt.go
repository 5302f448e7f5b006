package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

const (
	bucketAllocations = "allocations"
	bucketOverrides   = "overrides"
)

// BoltStore persists allocations and manual overrides in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures buckets exist.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketAllocations, bucketOverrides} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create inserts a new pending or active allocation.
func (s *BoltStore) Create(ctx context.Context, a allocations.Allocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateNew(a); err != nil {
		return err
	}
	a.DisplayCount = len(a.Displays)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAllocations))
		if b.Get([]byte(a.ID)) != nil {
			return ErrExists
		}
		err := b.ForEach(func(_, v []byte) error {
			var existing allocations.Allocation
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.SourceID == a.SourceID && existing.Status.IsHolding() {
				return &SourceHeldError{SourceID: a.SourceID, AllocationID: existing.ID}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return putJSON(b, a.ID, a)
	})
}

// Get retrieves an allocation by id.
func (s *BoltStore) Get(ctx context.Context, id string) (allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return allocations.Allocation{}, err
	}
	var a allocations.Allocation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketAllocations)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return allocations.Allocation{}, err
	}
	return a, nil
}

// Update applies mutate inside a single write transaction.
func (s *BoltStore) Update(ctx context.Context, id string, mutate func(*allocations.Allocation) error) (allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return allocations.Allocation{}, err
	}
	var next allocations.Allocation
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAllocations))
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var current allocations.Allocation
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("decoding allocation %s: %w", id, err)
		}
		updated, err := applyUpdate(current, mutate)
		if err != nil {
			return err
		}
		next = updated
		return putJSON(b, id, updated)
	})
	if err != nil {
		return allocations.Allocation{}, err
	}
	return next, nil
}

// Delete removes an allocation.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAllocations))
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// List returns matching allocations ordered by AllocatedAt then id.
func (s *BoltStore) List(ctx context.Context, filter Filter) ([]allocations.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []allocations.Allocation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAllocations)).ForEach(func(_, v []byte) error {
			var a allocations.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if filter.Matches(a) {
				result = append(result, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByAllocatedAt(result)
	return result, nil
}

// ActiveOverlapping returns pending or active allocations whose hold window overlaps window.
func (s *BoltStore) ActiveOverlapping(ctx context.Context, window timeutil.Window) ([]allocations.Allocation, error) {
	holding, err := s.List(ctx, Holding())
	if err != nil {
		return nil, err
	}
	return overlapping(holding, window), nil
}

// ActiveForSource returns the pending or active allocation on the source.
func (s *BoltStore) ActiveForSource(ctx context.Context, sourceID string) (allocations.Allocation, bool, error) {
	filter := Holding()
	filter.SourceID = sourceID
	list, err := s.List(ctx, filter)
	if err != nil || len(list) == 0 {
		return allocations.Allocation{}, false, err
	}
	return list[0], true, nil
}

// SetOverride records or replaces the override for a display.
func (s *BoltStore) SetOverride(ctx context.Context, o displays.ManualOverride) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket([]byte(bucketOverrides)), o.DisplayID, o)
	})
}

// ClearOverride removes the override for a display; clearing a missing one is a no-op.
func (s *BoltStore) ClearOverride(ctx context.Context, displayID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOverrides)).Delete([]byte(displayID))
	})
}

// GetOverride returns the override recorded for a display, expired or not.
func (s *BoltStore) GetOverride(ctx context.Context, displayID string) (displays.ManualOverride, bool, error) {
	if err := ctx.Err(); err != nil {
		return displays.ManualOverride{}, false, err
	}
	var (
		o     displays.ManualOverride
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketOverrides)).Get([]byte(displayID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &o)
	})
	return o, found, err
}

// ListOverrides returns every recorded override ordered by display id.
func (s *BoltStore) ListOverrides(ctx context.Context) ([]displays.ManualOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []displays.ManualOverride
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOverrides)).ForEach(func(_, v []byte) error {
			var o displays.ManualOverride
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			result = append(result, o)
			return nil
		})
	})
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayID < result[j].DisplayID })
	return result, err
}

func putJSON(b *bolt.Bucket, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}
