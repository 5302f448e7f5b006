// Package registry tracks the venue's input sources and their allocation flags.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
)

// entry holds one source. The allocation claim is a single atomic pointer so
// claims and releases are compare-and-set operations without a registry-wide lock.
type entry struct {
	source  sources.InputSource
	claimed atomic.Pointer[string]
	active  atomic.Bool
}

// Registry is the in-memory inventory of input sources.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New builds a Registry from the configured inventory.
// Allocation flags on the input are ignored; every source starts free.
func New(inventory []sources.InputSource) *Registry {
	r := &Registry{entries: make(map[string]*entry, len(inventory))}
	for _, src := range inventory {
		r.Register(src)
	}
	return r
}

// Register adds or replaces a source definition, keeping any existing claim.
func (r *Registry) Register(src sources.InputSource) {
	src.CurrentlyAllocated = false
	src.AllocatedGameID = ""
	src.Channels = copyChannels(src.Channels)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[src.ID]
	if !ok {
		e = &entry{}
		r.entries[src.ID] = e
		r.order = append(r.order, src.ID)
		sort.Strings(r.order)
	}
	e.source = src
	e.active.Store(src.IsActive)
}

// Get returns a snapshot of one source.
func (r *Registry) Get(sourceID string) (sources.InputSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sourceID]
	if !ok {
		return sources.InputSource{}, &SourceNotFoundError{SourceID: sourceID}
	}
	return e.snapshot(), nil
}

// List returns every source ordered by descending rank then id.
func (r *Registry) List() []sources.InputSource {
	r.mu.RLock()
	out := make([]sources.InputSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].snapshot())
	}
	r.mu.RUnlock()

	sources.ByRank(out)
	return out
}

// ListAvailable returns active, unclaimed sources whose capability set
// contains every need, ordered by descending rank then ascending id.
func (r *Registry) ListAvailable(needs []string) []sources.InputSource {
	var out []sources.InputSource
	for _, src := range r.List() {
		if !src.IsActive || src.CurrentlyAllocated {
			continue
		}
		if !src.Supports(needs) {
			continue
		}
		out = append(out, src)
	}
	return out
}

// MarkAllocated claims the source for gameID. Claiming a source already held
// by any game, including gameID itself, fails with SourceAlreadyAllocatedError.
func (r *Registry) MarkAllocated(sourceID, gameID string) error {
	e, err := r.lookup(sourceID)
	if err != nil {
		return err
	}
	claim := gameID
	if !e.claimed.CompareAndSwap(nil, &claim) {
		holder := ""
		if current := e.claimed.Load(); current != nil {
			holder = *current
		}
		return &SourceAlreadyAllocatedError{SourceID: sourceID, GameID: holder}
	}
	return nil
}

// MarkFree releases the source. Releasing a free source is a no-op.
func (r *Registry) MarkFree(sourceID string) error {
	e, err := r.lookup(sourceID)
	if err != nil {
		return err
	}
	e.claimed.Store(nil)
	return nil
}

// ReleaseIfHeldBy frees the source only when gameID holds it.
// It reports whether the source was released.
func (r *Registry) ReleaseIfHeldBy(sourceID, gameID string) (bool, error) {
	e, err := r.lookup(sourceID)
	if err != nil {
		return false, err
	}
	current := e.claimed.Load()
	if current == nil || *current != gameID {
		return false, nil
	}
	return e.claimed.CompareAndSwap(current, nil), nil
}

// HolderOf returns the game currently holding the source, if any.
func (r *Registry) HolderOf(sourceID string) (string, bool, error) {
	e, err := r.lookup(sourceID)
	if err != nil {
		return "", false, err
	}
	if current := e.claimed.Load(); current != nil {
		return *current, true, nil
	}
	return "", false, nil
}

// SetActive toggles whether the source can take new allocations.
func (r *Registry) SetActive(sourceID string, active bool) error {
	e, err := r.lookup(sourceID)
	if err != nil {
		return err
	}
	e.active.Store(active)
	return nil
}

func (r *Registry) lookup(sourceID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sourceID]
	if !ok {
		return nil, &SourceNotFoundError{SourceID: sourceID}
	}
	return e, nil
}

func (e *entry) snapshot() sources.InputSource {
	src := e.source
	src.Channels = copyChannels(src.Channels)
	src.IsActive = e.active.Load()
	if current := e.claimed.Load(); current != nil {
		src.CurrentlyAllocated = true
		src.AllocatedGameID = *current
	}
	return src
}

func copyChannels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
