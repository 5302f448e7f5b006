package games

import (
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

// GameStatus mirrors the feed contract for game lifecycle states.
type GameStatus string

const (
	StatusScheduled  GameStatus = "scheduled"
	StatusDelayed    GameStatus = "delayed"
	StatusInProgress GameStatus = "in_progress"
	StatusHalftime   GameStatus = "halftime"
	StatusFinal      GameStatus = "final"
	StatusPostponed  GameStatus = "postponed"
	StatusCancelled  GameStatus = "cancelled"
)

// IsTerminal reports whether the game can no longer need a source.
func (s GameStatus) IsTerminal() bool {
	switch s {
	case StatusFinal, StatusPostponed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsSchedulable reports whether the game may be considered for new allocations.
func (s GameStatus) IsSchedulable() bool {
	switch s {
	case StatusScheduled, StatusDelayed, StatusInProgress, StatusHalftime:
		return true
	default:
		return false
	}
}

// IsLive reports whether the game is currently being played.
func (s GameStatus) IsLive() bool {
	return s == StatusInProgress || s == StatusHalftime
}

// SeasonType classifies the stage of the season.
type SeasonType string

const (
	SeasonPre     SeasonType = "pre"
	SeasonRegular SeasonType = "regular"
	SeasonPlayoff SeasonType = "playoff"
)

// Score captures home and away points.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Game is the canonical game shape the scheduler reads from the feed.
type Game struct {
	ID             string     `json:"id"`
	League         string     `json:"league"`
	HomeTeam       teams.Team `json:"homeTeam"`
	AwayTeam       teams.Team `json:"awayTeam"`
	ScheduledStart time.Time  `json:"scheduledStart"`
	EstimatedEnd   time.Time  `json:"estimatedEnd"`
	Status         GameStatus `json:"status"`
	Score          Score      `json:"score"`
	Period         string     `json:"period,omitempty"`
	SeasonType     SeasonType `json:"seasonType,omitempty"`
	PlayoffRound   string     `json:"playoffRound,omitempty"`
	Networks       []string   `json:"networks,omitempty"`

	CalculatedPriority int      `json:"calculatedPriority"`
	PriorityFactors    []string `json:"priorityFactors,omitempty"`
	IsPriorityGame     bool     `json:"isPriorityGame"`
	Stale              bool     `json:"stale,omitempty"`
}

// IsPlayoff reports whether the game belongs to the postseason.
func (g Game) IsPlayoff() bool {
	return g.SeasonType == SeasonPlayoff
}

// Window returns the game's scheduled interval.
func (g Game) Window() timeutil.Window {
	return timeutil.Window{Start: g.ScheduledStart, End: g.EstimatedEnd}
}

// Ended reports whether the game is out of scheduling consideration at now.
func (g Game) Ended(now time.Time) bool {
	if g.Status.IsTerminal() {
		return true
	}
	return !g.EstimatedEnd.IsZero() && !now.Before(g.EstimatedEnd)
}

// Matchup renders "Away @ Home" for logs and recommendations.
func (g Game) Matchup() string {
	return g.AwayTeam.DisplayName() + " @ " + g.HomeTeam.DisplayName()
}

// Needs returns the alternative networks any of which can carry the game.
func (g Game) Needs() []string {
	return g.Networks
}

// GamesResponse is the payload returned by GET /games.
type GamesResponse struct {
	Games []Game `json:"games"`
	Count int    `json:"count"`
}

// NewGamesResponse builds a GamesResponse payload.
func NewGamesResponse(games []Game) GamesResponse {
	if games == nil {
		games = []Game{}
	}
	return GamesResponse{Games: games, Count: len(games)}
}
