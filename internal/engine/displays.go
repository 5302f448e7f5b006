package engine

import (
	"sort"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
)

// pickDisplays chooses free, non-overridden displays for a game, preferred
// zones first, and rates the result.
func (e *Engine) pickDisplays(cand appgames.Candidate, busy, overridden map[string]bool) ([]string, allocations.Quality) {
	if len(e.cfg.Displays) == 0 {
		return nil, allocations.QualityOptimal
	}
	want := cand.Priority.MinDisplays
	if want < 1 {
		want = 1
	}

	zones := map[string]bool{}
	if pref := cand.Priority.Preference; pref != nil {
		for _, z := range pref.PreferredZones {
			zones[z] = true
		}
	}

	var preferred, rest []string
	for _, d := range e.cfg.Displays {
		if busy[d.ID] || overridden[d.ID] {
			continue
		}
		if zones[d.Zone] {
			preferred = append(preferred, d.ID)
		} else {
			rest = append(rest, d.ID)
		}
	}
	picked := append(preferred, rest...)
	if len(picked) > want {
		picked = picked[:want]
	}

	switch {
	case len(picked) == 0:
		return nil, allocations.QualityDegraded
	case len(picked) < want:
		return picked, allocations.QualitySuboptimal
	case len(zones) > 0 && len(preferred) < len(picked):
		return picked, allocations.QualitySuboptimal
	default:
		return picked, allocations.QualityOptimal
	}
}

// withNetwork downgrades an optimal rating when the source tunes a fallback
// network rather than the game's primary one.
func withNetwork(q allocations.Quality, tuned string, networks []string) allocations.Quality {
	if q == allocations.QualityOptimal && len(networks) > 0 && tuned != networks[0] {
		return allocations.QualitySuboptimal
	}
	return q
}

func sortedIDs(m map[string]allocations.Allocation) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func anyIn(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
