package testutil

import (
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
)

// BaseTime is the fixed instant most scheduler tests are anchored to.
var BaseTime = time.Date(2024, 1, 14, 17, 0, 0, 0, time.UTC)

// SampleGame returns a scheduled three-hour game starting at start and
// carried on the given networks.
func SampleGame(id string, start time.Time, networks ...string) games.Game {
	return games.Game{
		ID:             id,
		League:         "NFL",
		HomeTeam:       teams.Team{ID: id + "-home", Name: "Home " + id},
		AwayTeam:       teams.Team{ID: id + "-away", Name: "Away " + id},
		ScheduledStart: start,
		EstimatedEnd:   start.Add(3 * time.Hour),
		Status:         games.StatusScheduled,
		SeasonType:     games.SeasonRegular,
		Networks:       networks,
	}
}

// Matchup returns g with the given team names.
func Matchup(g games.Game, away, home string) games.Game {
	g.AwayTeam = teams.Team{ID: away, Name: away}
	g.HomeTeam = teams.Team{ID: home, Name: home}
	return g
}

// SampleSource returns an active cable box carrying networks.
func SampleSource(id string, rank int, networks ...string) sources.InputSource {
	channels := make(map[string]string, len(networks))
	for _, n := range networks {
		channels[n] = n
	}
	return sources.InputSource{
		ID:           id,
		Name:         "Source " + id,
		Type:         sources.TypeCable,
		Channels:     channels,
		PriorityRank: rank,
		IsActive:     true,
	}
}

// SamplePreference returns a team preference with the given base priority.
func SamplePreference(name string, base int) teams.Preference {
	return teams.Preference{Name: name, BasePriority: base}
}

// SampleAllocation returns an active allocation holding source for game over
// [at, at+3h).
func SampleAllocation(id, sourceID, gameID string, at time.Time) allocations.Allocation {
	return allocations.Allocation{
		ID:             id,
		SourceID:       sourceID,
		SourceType:     sources.TypeCable,
		GameID:         gameID,
		Channel:        "ch",
		Displays:       []string{"tv-1"},
		DisplayCount:   1,
		Priority:       10,
		AllocatedAt:    at,
		ExpectedFreeAt: at.Add(3 * time.Hour),
		Status:         allocations.StatusActive,
		Quality:        allocations.QualityOptimal,
	}
}
