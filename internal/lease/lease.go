// Package lease guarantees at most one allocation tick runs at a time,
// within a process and optionally across replicas.
package lease

import (
	"context"
	"sync"
)

// Lease grants exclusive tick ownership. TryAcquire never blocks waiting for
// the holder: when the lease is taken it returns ok=false.
type Lease interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Local is an in-process lease.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an unheld Local lease.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}

// Chain acquires every lease in order, releasing the ones already held if a
// later one is unavailable.
type Chain []Lease

func (c Chain) TryAcquire(ctx context.Context) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, ok, err := l.TryAcquire(ctx)
		if err != nil || !ok {
			releaseAll()
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return releaseAll, true, nil
}
