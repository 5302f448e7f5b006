package httpfeed

import (
	"strings"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
)

func mapGame(g gameResponse) (games.Game, bool) {
	start, err := time.Parse(time.RFC3339, g.StartTime)
	if err != nil || g.ID == "" {
		return games.Game{}, false
	}
	end := start.Add(defaultGameLength)
	if g.EstimatedEnd != "" {
		if parsed, err := time.Parse(time.RFC3339, g.EstimatedEnd); err == nil && parsed.After(start) {
			end = parsed
		}
	}

	return games.Game{
		ID:             g.ID,
		League:         strings.ToUpper(strings.TrimSpace(g.League)),
		HomeTeam:       mapTeam(g.HomeTeam),
		AwayTeam:       mapTeam(g.VisitorTeam),
		ScheduledStart: start.UTC(),
		EstimatedEnd:   end.UTC(),
		Status:         mapStatus(g.Status),
		Score:          games.Score{Home: g.HomeScore, Away: g.VisitorScore},
		Period:         strings.TrimSpace(g.Period),
		SeasonType:     mapSeason(g),
		PlayoffRound:   g.PlayoffRound,
		Networks:       normalizeNetworks(g.Networks),
	}, true
}

func mapTeam(t teamResponse) teams.Team {
	return teams.Team{ID: t.ID, Name: strings.TrimSpace(t.Name)}
}

func mapStatus(status string) games.GameStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "final", "ended", "final/ot":
		return games.StatusFinal
	case "in progress", "in_progress", "live", "end of period":
		return games.StatusInProgress
	case "halftime":
		return games.StatusHalftime
	case "delayed", "rain delay":
		return games.StatusDelayed
	case "postponed":
		return games.StatusPostponed
	case "canceled", "cancelled":
		return games.StatusCancelled
	default:
		return games.StatusScheduled
	}
}

func mapSeason(g gameResponse) games.SeasonType {
	switch {
	case g.Postseason:
		return games.SeasonPlayoff
	case g.Preseason:
		return games.SeasonPre
	default:
		return games.SeasonRegular
	}
}

func normalizeNetworks(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, n := range in {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
