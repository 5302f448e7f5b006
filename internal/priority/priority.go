// Package priority scores games against the venue's team preferences.
package priority

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
)

const (
	defaultPlayoffBoost = 1.5
	defaultRivalBonus   = 25
	defaultNetworkBonus = 10
	defaultThreshold    = 75
	defaultMaxScore     = 1000
)

// Config holds the tunable scoring constants.
type Config struct {
	PlayoffBoost    float64
	RivalBonus      int
	NetworkBonus    int
	Threshold       int
	MaxScore        int
	PremiumNetworks []string
}

// DefaultConfig returns the stock scoring constants.
func DefaultConfig() Config {
	return Config{
		PlayoffBoost: defaultPlayoffBoost,
		RivalBonus:   defaultRivalBonus,
		NetworkBonus: defaultNetworkBonus,
		Threshold:    defaultThreshold,
		MaxScore:     defaultMaxScore,
	}
}

// Result is the outcome of scoring one game.
type Result struct {
	Score          int
	Factors        []string
	IsPriorityGame bool
	// Preference is the strongest matched preference, nil when no team matched.
	Preference *teams.Preference
	// MinDisplays is the largest floor among all matched preferences.
	MinDisplays int
}

// Calculator scores games. It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	cfg     Config
	premium map[string]struct{}
}

// NewCalculator builds a Calculator, replacing non-positive constants with defaults.
func NewCalculator(cfg Config) *Calculator {
	if cfg.PlayoffBoost <= 1 {
		cfg.PlayoffBoost = defaultPlayoffBoost
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = defaultMaxScore
	}
	if cfg.RivalBonus < 0 {
		cfg.RivalBonus = 0
	}
	if cfg.NetworkBonus < 0 {
		cfg.NetworkBonus = 0
	}
	premium := make(map[string]struct{}, len(cfg.PremiumNetworks))
	for _, n := range cfg.PremiumNetworks {
		premium[strings.ToUpper(strings.TrimSpace(n))] = struct{}{}
	}
	return &Calculator{cfg: cfg, premium: premium}
}

// Config returns the effective configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Calculate scores a game. It reads only the game's own fields and prefs.
func (c *Calculator) Calculate(game games.Game, prefs []teams.Preference) Result {
	var res Result
	score := 0.0

	matched, opponent := matchPreferences(game, prefs)
	for _, m := range matched {
		if m.MinDisplays > res.MinDisplays {
			res.MinDisplays = m.MinDisplays
		}
	}

	if len(matched) > 0 {
		pref := matched[0]
		res.Preference = &pref
		score += float64(pref.BasePriority)
		res.Factors = append(res.Factors, fmt.Sprintf("team %s base +%d", pref.Name, pref.BasePriority))

		if game.IsPlayoff() && pref.AutoPromotePlayoff {
			score *= c.cfg.PlayoffBoost
			label := "playoff"
			if game.PlayoffRound != "" {
				label = game.PlayoffRound
			}
			res.Factors = append(res.Factors, fmt.Sprintf("%s boost x%.2f", label, c.cfg.PlayoffBoost))
		}

		if pref.IsRival(opponent) {
			score += float64(c.cfg.RivalBonus)
			res.Factors = append(res.Factors, fmt.Sprintf("rival %s +%d", opponent.DisplayName(), c.cfg.RivalBonus))
		}
	}

	if network, ok := c.premiumNetwork(game.Networks); ok {
		score += float64(c.cfg.NetworkBonus)
		res.Factors = append(res.Factors, fmt.Sprintf("network %s +%d", network, c.cfg.NetworkBonus))
	}

	res.Score = clamp(int(math.Round(score)), 0, c.cfg.MaxScore)
	if res.Score > c.cfg.Threshold {
		res.IsPriorityGame = true
	}
	if res.MinDisplays > 0 {
		res.IsPriorityGame = true
	}
	return res
}

// Apply scores the game and stores the result on its derived fields.
func (c *Calculator) Apply(game games.Game, prefs []teams.Preference) (games.Game, Result) {
	res := c.Calculate(game, prefs)
	game.CalculatedPriority = res.Score
	game.PriorityFactors = res.Factors
	game.IsPriorityGame = res.IsPriorityGame
	return game, res
}

// matchPreferences returns the matched preferences strongest first, along with
// the team opposing the strongest match.
func matchPreferences(game games.Game, prefs []teams.Preference) ([]teams.Preference, teams.Team) {
	type candidate struct {
		pref     teams.Preference
		opponent teams.Team
	}
	var found []candidate
	for _, p := range prefs {
		switch {
		case p.Matches(game.HomeTeam):
			found = append(found, candidate{p, game.AwayTeam})
		case p.Matches(game.AwayTeam):
			found = append(found, candidate{p, game.HomeTeam})
		}
	}
	if len(found) == 0 {
		return nil, teams.Team{}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].pref.BasePriority != found[j].pref.BasePriority {
			return found[i].pref.BasePriority > found[j].pref.BasePriority
		}
		return found[i].pref.Name < found[j].pref.Name
	})

	matched := make([]teams.Preference, 0, len(found))
	for _, f := range found {
		matched = append(matched, f.pref)
	}
	return matched, found[0].opponent
}

func (c *Calculator) premiumNetwork(networks []string) (string, bool) {
	for _, n := range networks {
		if _, ok := c.premium[strings.ToUpper(strings.TrimSpace(n))]; ok {
			return n, true
		}
	}
	return "", false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
