// Package games serves the scheduler's view of the feed: cached games with
// derived priority and staleness.
package games

import (
	"sort"
	"time"

	domaingames "github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
	"github.com/preston-bernstein/venue-scheduler/internal/priority"
)

// Store defines the contract for persisting and retrieving games.
type Store interface {
	ListGames() []domaingames.Game
	GetGame(id string) (domaingames.Game, bool)
	SetGames(games []domaingames.Game, syncedAt time.Time)
	UpsertGames(games []domaingames.Game, syncedAt time.Time) map[string]domaingames.Game
	Prune(cutoff time.Time) int
	SyncedAt() time.Time
}

// Candidate is a game paired with its priority breakdown.
type Candidate struct {
	Game     domaingames.Game
	Priority priority.Result
}

// Service coordinates game reads using a Store and a priority Calculator.
type Service struct {
	store      Store
	calc       *priority.Calculator
	prefs      []teams.Preference
	staleAfter time.Duration
}

// NewService constructs a Service. A non-positive staleAfter disables staleness.
func NewService(store Store, calc *priority.Calculator, prefs []teams.Preference, staleAfter time.Duration) *Service {
	return &Service{
		store:      store,
		calc:       calc,
		prefs:      append([]teams.Preference(nil), prefs...),
		staleAfter: staleAfter,
	}
}

// Preferences returns the configured team preferences.
func (s *Service) Preferences() []teams.Preference {
	return append([]teams.Preference(nil), s.prefs...)
}

// Games returns every cached game scored at now, ordered by start then id.
func (s *Service) Games(now time.Time) []domaingames.Game {
	list := s.store.ListGames()
	stale := s.IsStale(now)
	out := make([]domaingames.Game, 0, len(list))
	for _, g := range list {
		scored, _ := s.calc.Apply(g, s.prefs)
		scored.Stale = stale
		out = append(out, scored)
	}
	sortGames(out)
	return out
}

// GameByID returns a single scored game if present.
func (s *Service) GameByID(id string, now time.Time) (domaingames.Game, bool) {
	g, ok := s.store.GetGame(id)
	if !ok {
		return domaingames.Game{}, false
	}
	g, _ = s.calc.Apply(g, s.prefs)
	g.Stale = s.IsStale(now)
	return g, true
}

// Candidate scores one cached game.
func (s *Service) Candidate(id string) (Candidate, bool) {
	g, ok := s.store.GetGame(id)
	if !ok {
		return Candidate{}, false
	}
	g, res := s.calc.Apply(g, s.prefs)
	return Candidate{Game: g, Priority: res}, true
}

// Candidates returns schedulable games starting before now+horizon that have
// not ended, highest priority first. Stale data yields no candidates.
func (s *Service) Candidates(now time.Time, horizon time.Duration) []Candidate {
	if s.IsStale(now) {
		return nil
	}
	cutoff := now.Add(horizon)
	var out []Candidate
	for _, g := range s.store.ListGames() {
		if !g.Status.IsSchedulable() || g.Ended(now) {
			continue
		}
		if !g.ScheduledStart.Before(cutoff) {
			continue
		}
		g, res := s.calc.Apply(g, s.prefs)
		out = append(out, Candidate{Game: g, Priority: res})
	}
	SortByPriority(out)
	return out
}

// SortByPriority orders candidates by descending score, then earlier start, then id.
func SortByPriority(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Game, list[j].Game
		if a.CalculatedPriority != b.CalculatedPriority {
			return a.CalculatedPriority > b.CalculatedPriority
		}
		if !a.ScheduledStart.Equal(b.ScheduledStart) {
			return a.ScheduledStart.Before(b.ScheduledStart)
		}
		return a.ID < b.ID
	})
}

// ReplaceGames swaps the cached games with a new snapshot.
func (s *Service) ReplaceGames(list []domaingames.Game, at time.Time) {
	s.store.SetGames(list, at)
}

// Ingest merges a feed refresh and returns the ids of games that became live.
func (s *Service) Ingest(list []domaingames.Game, at time.Time) []string {
	previous := s.store.UpsertGames(list, at)
	var live []string
	for _, g := range list {
		if !g.Status.IsLive() {
			continue
		}
		if old, ok := previous[g.ID]; ok && old.Status.IsLive() {
			continue
		}
		live = append(live, g.ID)
	}
	sort.Strings(live)
	return live
}

// Prune drops games that ended before cutoff.
func (s *Service) Prune(cutoff time.Time) int {
	return s.store.Prune(cutoff)
}

// SyncedAt reports the last successful feed refresh.
func (s *Service) SyncedAt() time.Time {
	return s.store.SyncedAt()
}

// IsStale reports whether the feed has not refreshed within the staleness bound.
func (s *Service) IsStale(now time.Time) bool {
	if s.staleAfter <= 0 {
		return false
	}
	synced := s.store.SyncedAt()
	if synced.IsZero() {
		return true
	}
	return now.Sub(synced) > s.staleAfter
}

func sortGames(list []domaingames.Game) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].ScheduledStart.Equal(list[j].ScheduledStart) {
			return list[i].ScheduledStart.Before(list[j].ScheduledStart)
		}
		return list[i].ID < list[j].ID
	})
}
