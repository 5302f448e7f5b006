// Package fixture serves a deterministic slate of games for local runs.
package fixture

import (
	"context"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
)

// Name identifies the fixture feed in logs and metrics.
const Name = "fixture"

// Feed returns a static slate anchored to the top of the current hour.
type Feed struct {
	now func() time.Time
}

// New creates a fixture feed with a time source.
func New() *Feed {
	return &Feed{now: time.Now}
}

type slot struct {
	id       string
	league   string
	away     teams.Team
	home     teams.Team
	offset   time.Duration
	length   time.Duration
	season   games.SeasonType
	networks []string
}

var slate = []slot{
	{"fixture-1", "NFL", team("chi", "Bears"), team("gb", "Packers"), 1 * time.Hour, 3*time.Hour + 15*time.Minute, games.SeasonPlayoff, []string{"FOX"}},
	{"fixture-2", "NFL", team("dal", "Cowboys"), team("phi", "Eagles"), 1 * time.Hour, 3*time.Hour + 15*time.Minute, games.SeasonRegular, []string{"CBS"}},
	{"fixture-3", "NBA", team("lal", "Lakers"), team("bos", "Celtics"), 2 * time.Hour, 2*time.Hour + 30*time.Minute, games.SeasonRegular, []string{"ESPN", "ESPN+"}},
	{"fixture-4", "NHL", team("det", "Red Wings"), team("chi-h", "Blackhawks"), 3 * time.Hour, 2*time.Hour + 45*time.Minute, games.SeasonRegular, []string{"TNT"}},
	{"fixture-5", "NFL", team("kc", "Chiefs"), team("buf", "Bills"), 4 * time.Hour, 3*time.Hour + 15*time.Minute, games.SeasonPlayoff, []string{"NBC", "PEACOCK"}},
}

func team(id, name string) teams.Team {
	return teams.Team{ID: id, Name: name}
}

// FetchGames returns the fixture games whose window overlaps [from, to).
// Zero bounds are unbounded.
func (f *Feed) FetchGames(ctx context.Context, from, to time.Time) ([]games.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	anchor := f.now().UTC().Truncate(time.Hour)

	out := make([]games.Game, 0, len(slate))
	for _, s := range slate {
		start := anchor.Add(s.offset)
		g := games.Game{
			ID:             s.id,
			League:         s.league,
			HomeTeam:       s.home,
			AwayTeam:       s.away,
			ScheduledStart: start,
			EstimatedEnd:   start.Add(s.length),
			Status:         games.StatusScheduled,
			SeasonType:     s.season,
			Networks:       append([]string(nil), s.networks...),
		}
		if !to.IsZero() && !g.ScheduledStart.Before(to) {
			continue
		}
		if !from.IsZero() && !g.EstimatedEnd.After(from) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
