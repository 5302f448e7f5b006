package conflicts

import (
	"strconv"
	"strings"

	domainconflicts "github.com/preston-bernstein/venue-scheduler/internal/domain/conflicts"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
)

type gapKind string

const (
	// gapTyped means the inventory has a source type that carries the network.
	gapTyped gapKind = "typed"
	// gapUncarried means no source in the inventory carries it at all.
	gapUncarried gapKind = "uncarried"
)

type recommendationKey struct {
	severity domainconflicts.Severity
	gap      gapKind
}

var recommendationTable = map[recommendationKey][]string{
	{domainconflicts.SeverityCritical, gapTyped}: {
		"Add {n} more input sources of type {type} carrying {network}",
		"Free a {type} source for priority game {game} before {start}",
	},
	{domainconflicts.SeverityCritical, gapUncarried}: {
		"No input source carries {network}; add one before {start} for priority game {game}",
	},
	{domainconflicts.SeverityHigh, gapTyped}: {
		"Add {n} more input sources of type {type} carrying {network}",
	},
	{domainconflicts.SeverityHigh, gapUncarried}: {
		"Add {n} input sources carrying {network}",
	},
	{domainconflicts.SeverityMedium, gapTyped}: {
		"Add 1 more input source of type {type} carrying {network}",
	},
	{domainconflicts.SeverityMedium, gapUncarried}: {
		"Add an input source carrying {network}",
	},
	{domainconflicts.SeverityLow, gapTyped}: {
		"Lower-priority games will be preempted to cover {game}",
	},
	{domainconflicts.SeverityLow, gapUncarried}: {
		"Lower-priority games will be preempted to cover {game}",
	},
}

const (
	preemptionNote   = "Preempting lower-priority games resolves this window without operator action"
	dropDisplaysNote = "Consider dropping display count for {team}"
	startLayout      = "15:04 MST"
)

// recommend renders the lookup-table advice for a finalized conflict.
func recommend(c domainconflicts.SchedulingConflict, snap *snapshot) []string {
	var lead domainconflicts.CollidingGame
	for _, g := range c.Games {
		if g.Excess {
			lead = g
			break
		}
	}

	network := "any network"
	if networks := snap.networksOf(lead.GameID); len(networks) > 0 {
		network = networks[0]
	}
	gap, sourceType := gapUncarried, ""
	if t, ok := carrierType(snap.sources, network); ok {
		gap, sourceType = gapTyped, string(t)
	}

	r := strings.NewReplacer(
		"{n}", strconv.Itoa(c.Shortfall()),
		"{type}", sourceType,
		"{network}", network,
		"{game}", lead.Matchup,
		"{start}", lead.ScheduledStart.Format(startLayout),
		"{team}", snap.displayHeavyTeam(c),
	)

	templates := append([]string(nil), recommendationTable[recommendationKey{c.Severity, gap}]...)
	if c.CanBeResolved && c.Severity != domainconflicts.SeverityLow {
		templates = append(templates, preemptionNote)
	}
	if snap.displayHeavyTeam(c) != "" {
		templates = append(templates, dropDisplaysNote)
	}

	out := make([]string, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, r.Replace(tpl))
	}
	return out
}

// carrierType returns the type of the strongest source carrying network.
func carrierType(list []sources.InputSource, network string) (sources.Type, bool) {
	var carriers []sources.InputSource
	for _, src := range list {
		if _, ok := src.Channels[network]; ok {
			carriers = append(carriers, src)
		}
	}
	if len(carriers) == 0 {
		return "", false
	}
	sources.ByRank(carriers)
	return carriers[0].Type, true
}

// displayHeavyTeam names a preference in the conflict that asks for more
// than one display.
func (s *snapshot) displayHeavyTeam(c domainconflicts.SchedulingConflict) string {
	for _, g := range c.Games {
		for _, d := range s.demands {
			if d.game.Game.ID != g.GameID {
				continue
			}
			if pref := d.game.Priority.Preference; pref != nil && d.game.Priority.MinDisplays > 1 {
				return pref.Name
			}
		}
	}
	return ""
}
