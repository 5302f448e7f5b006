package store

import (
	"sync"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
)

// GameStore keeps a thread-safe snapshot of feed games in memory.
type GameStore struct {
	mu       sync.RWMutex
	games    map[string]games.Game
	syncedAt time.Time
}

// NewGameStore constructs an empty GameStore.
func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[string]games.Game),
	}
}

// ListGames returns a copy of the current games.
func (s *GameStore) ListGames() []games.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]games.Game, 0, len(s.games))
	for _, g := range s.games {
		result = append(result, cloneGame(g))
	}
	return result
}

// GetGame retrieves a game by ID.
func (s *GameStore) GetGame(id string) (games.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	return cloneGame(g), ok
}

// SetGames replaces the existing games with a new snapshot.
func (s *GameStore) SetGames(list []games.Game, syncedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games = make(map[string]games.Game, len(list))
	for _, g := range list {
		s.games[g.ID] = cloneGame(g)
	}
	s.syncedAt = syncedAt
}

// UpsertGames merges games by id and returns the previous version of each
// game that already existed.
func (s *GameStore) UpsertGames(list []games.Game, syncedAt time.Time) map[string]games.Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := make(map[string]games.Game)
	for _, g := range list {
		if old, ok := s.games[g.ID]; ok {
			previous[g.ID] = old
		}
		s.games[g.ID] = cloneGame(g)
	}
	s.syncedAt = syncedAt
	return previous
}

// Prune drops games whose estimated end is before cutoff and returns how many were removed.
func (s *GameStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, g := range s.games {
		if !g.EstimatedEnd.IsZero() && g.EstimatedEnd.Before(cutoff) {
			delete(s.games, id)
			removed++
		}
	}
	return removed
}

// SyncedAt returns when the feed last refreshed the store.
func (s *GameStore) SyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

func cloneGame(g games.Game) games.Game {
	g.Networks = append([]string(nil), g.Networks...)
	g.PriorityFactors = append([]string(nil), g.PriorityFactors...)
	return g
}
