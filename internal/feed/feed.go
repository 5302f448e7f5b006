// Package feed fetches upcoming and live games from an external schedule source.
package feed

import (
	"context"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
)

// GameFeed returns games whose scheduled window touches [from, to).
type GameFeed interface {
	FetchGames(ctx context.Context, from, to time.Time) ([]games.Game, error)
}
