// Package conflicts measures structural demand against supply over the
// look-ahead horizon. It never mutates allocation state.
package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	domainconflicts "github.com/preston-bernstein/venue-scheduler/internal/domain/conflicts"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

// GameSource supplies scored candidate games.
type GameSource interface {
	Candidates(now time.Time, horizon time.Duration) []appgames.Candidate
	Candidate(id string) (appgames.Candidate, bool)
	IsStale(now time.Time) bool
}

// Inventory lists the venue's input sources.
type Inventory interface {
	List() []sources.InputSource
}

// AllocationReader exposes the overlap query the detector needs.
type AllocationReader interface {
	ActiveOverlapping(ctx context.Context, window timeutil.Window) ([]allocations.Allocation, error)
}

// Detector is safe for concurrent use; every call works on its own snapshot.
type Detector struct {
	games     GameSource
	inventory Inventory
	allocs    AllocationReader
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// NewDetector wires a Detector.
func NewDetector(games GameSource, inventory Inventory, allocs AllocationReader, logger *slog.Logger, recorder *metrics.Recorder) *Detector {
	return &Detector{
		games:     games,
		inventory: inventory,
		allocs:    allocs,
		logger:    logger,
		metrics:   recorder,
		now:       time.Now,
	}
}

// demand is one game competing for a source, clipped to the horizon.
type demand struct {
	game     appgames.Candidate
	interval timeutil.Window
}

// holder is an allocation that occupies a source during part of the horizon.
type holder struct {
	alloc    allocations.Allocation
	priority int
}

type snapshot struct {
	horizon  timeutil.Window
	demands  []demand
	holders  []holder
	sources  []sources.InputSource
	serviced map[string][]allocations.Allocation
}

// Detect reports every window in the next lookAhead where games needing a
// source outnumber the sources able to serve them.
func (d *Detector) Detect(ctx context.Context, lookAhead time.Duration) (domainconflicts.Report, error) {
	now := d.now()
	hours := int(lookAhead / time.Hour)

	snap, err := d.load(ctx, now, lookAhead)
	if err != nil {
		return domainconflicts.Report{}, err
	}

	var found []domainconflicts.SchedulingConflict
	for _, w := range subWindows(snap.demands) {
		if c, ok := snap.evaluate(w); ok {
			found = append(found, c)
		}
	}
	found = merge(found)
	for i := range found {
		finalize(&found[i], snap)
	}

	report := domainconflicts.NewReport(found, now, hours)
	report.StaleData = d.games.IsStale(now)

	bySeverity := map[string]int{}
	for _, c := range found {
		bySeverity[string(c.Severity)]++
	}
	d.metrics.RecordConflicts(bySeverity)
	if len(found) > 0 {
		logging.Info(d.logger, "scheduling conflicts detected",
			logging.FieldCount, len(found),
			"critical", report.CriticalConflicts,
		)
	}
	return report, nil
}

// load gathers games, allocations, and inventory concurrently.
func (d *Detector) load(ctx context.Context, now time.Time, lookAhead time.Duration) (*snapshot, error) {
	snap := &snapshot{
		horizon:  timeutil.NewWindow(now, lookAhead),
		serviced: map[string][]allocations.Allocation{},
	}
	var candidates []appgames.Candidate
	var held []allocations.Allocation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		candidates = d.games.Candidates(now, lookAhead)
		return nil
	})
	g.Go(func() error {
		list, err := d.allocs.ActiveOverlapping(gctx, snap.horizon)
		if err != nil {
			return fmt.Errorf("load allocations: %w", err)
		}
		held = list
		return nil
	})
	g.Go(func() error {
		snap.sources = d.inventory.List()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.Game.ID] = true
		snap.addDemand(c)
	}
	for _, a := range held {
		snap.serviced[a.GameID] = append(snap.serviced[a.GameID], a)
		priority := a.Priority
		cand, ok := d.games.Candidate(a.GameID)
		if ok {
			priority = cand.Game.CalculatedPriority
		}
		snap.holders = append(snap.holders, holder{alloc: a, priority: priority})
		// Games already holding a source stay in scope even when the feed
		// would no longer offer them as candidates.
		if ok && !seen[a.GameID] && !cand.Game.Status.IsTerminal() {
			seen[a.GameID] = true
			snap.addDemand(cand)
		}
	}
	return snap, nil
}

func (s *snapshot) addDemand(c appgames.Candidate) {
	interval := c.Game.Window().Clip(s.horizon)
	if interval.Empty() {
		return
	}
	s.demands = append(s.demands, demand{game: c, interval: interval})
}

// subWindows returns the minimal windows between consecutive start and end
// boundaries that at least one demand covers.
func subWindows(demands []demand) []timeutil.Window {
	bounds := make([]time.Time, 0, 2*len(demands))
	for _, d := range demands {
		bounds = append(bounds, d.interval.Start, d.interval.End)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Before(bounds[j]) })

	var out []timeutil.Window
	for i := 0; i+1 < len(bounds); i++ {
		w := timeutil.Window{Start: bounds[i], End: bounds[i+1]}
		if w.Empty() {
			continue
		}
		for _, d := range demands {
			if d.interval.Covers(w) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// evaluate compares unserviced demand with idle compatible supply in w.
func (s *snapshot) evaluate(w timeutil.Window) (domainconflicts.SchedulingConflict, bool) {
	busy := map[string]bool{}
	for _, h := range s.holders {
		if h.alloc.Window().Overlaps(w) {
			busy[h.alloc.SourceID] = true
		}
	}

	var needing []appgames.Candidate
	for _, d := range s.demands {
		if !d.interval.Covers(w) || s.isServiced(d.game, w) {
			continue
		}
		needing = append(needing, d.game)
	}
	if len(needing) == 0 {
		return domainconflicts.SchedulingConflict{}, false
	}
	appgames.SortByPriority(needing)

	var idle []sources.InputSource
	for _, src := range s.sources {
		if src.IsActive && !busy[src.ID] {
			idle = append(idle, src)
		}
	}
	sources.ByRank(idle)

	available := 0
	for _, src := range idle {
		for _, g := range needing {
			if src.CanServe(g.Game.Networks) {
				available++
				break
			}
		}
	}
	if len(needing) <= available {
		return domainconflicts.SchedulingConflict{}, false
	}

	excess := excessGames(needing, idle)
	games := make([]domainconflicts.CollidingGame, 0, len(needing))
	for _, g := range needing {
		games = append(games, domainconflicts.CollidingGame{
			GameID:         g.Game.ID,
			Matchup:        g.Game.Matchup(),
			Priority:       g.Game.CalculatedPriority,
			IsPriorityGame: g.Game.IsPriorityGame,
			ScheduledStart: g.Game.ScheduledStart,
			Excess:         excess[g.Game.ID],
		})
	}
	return domainconflicts.SchedulingConflict{
		Start:           w.Start,
		End:             w.End,
		RequiredInputs:  len(needing),
		AvailableInputs: available,
		Games:           games,
	}, true
}

// isServiced reports whether a holding allocation on a compatible source
// covers the game during w.
func (s *snapshot) isServiced(c appgames.Candidate, w timeutil.Window) bool {
	for _, a := range s.serviced[c.Game.ID] {
		if !a.Window().Overlaps(w) {
			continue
		}
		src, ok := s.source(a.SourceID)
		if ok && src.CanServe(c.Game.Networks) {
			return true
		}
	}
	return false
}

func (s *snapshot) source(id string) (sources.InputSource, bool) {
	for _, src := range s.sources {
		if src.ID == id {
			return src, true
		}
	}
	return sources.InputSource{}, false
}

// excessGames greedily hands idle sources to needing games in priority order
// and returns the games left without one.
func excessGames(needing []appgames.Candidate, idle []sources.InputSource) map[string]bool {
	used := make(map[string]bool, len(idle))
	excess := map[string]bool{}
	for _, g := range needing {
		assigned := false
		for _, src := range idle {
			if used[src.ID] || !src.CanServe(g.Game.Networks) {
				continue
			}
			used[src.ID] = true
			assigned = true
			break
		}
		if !assigned {
			excess[g.Game.ID] = true
		}
	}
	return excess
}

// merge joins adjacent conflicts that involve the same set of games.
func merge(list []domainconflicts.SchedulingConflict) []domainconflicts.SchedulingConflict {
	if len(list) == 0 {
		return nil
	}
	out := []domainconflicts.SchedulingConflict{list[0]}
	for _, c := range list[1:] {
		last := &out[len(out)-1]
		if last.End.Equal(c.Start) && sameGames(last.Games, c.Games) {
			last.End = c.End
			if c.AvailableInputs < last.AvailableInputs {
				last.AvailableInputs = c.AvailableInputs
			}
			for i := range last.Games {
				last.Games[i].Excess = last.Games[i].Excess || c.Games[i].Excess
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameGames(a, b []domainconflicts.CollidingGame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].GameID != b[i].GameID {
			return false
		}
	}
	return true
}

// finalize fills severity, resolvability, and recommendations.
func finalize(c *domainconflicts.SchedulingConflict, snap *snapshot) {
	w := timeutil.Window{Start: c.Start, End: c.End}
	c.CanBeResolved = snap.resolvableByPreemption(*c, w)
	c.Severity = severity(*c)
	c.Recommendations = recommend(*c, snap)
}

// severity grades a conflict. A priority game left over is always critical;
// otherwise a shortfall preemption can absorb is low.
func severity(c domainconflicts.SchedulingConflict) domainconflicts.Severity {
	for _, g := range c.Games {
		if g.Excess && g.IsPriorityGame {
			return domainconflicts.SeverityCritical
		}
	}
	switch {
	case c.CanBeResolved:
		return domainconflicts.SeverityLow
	case c.Shortfall() >= 2:
		return domainconflicts.SeverityHigh
	default:
		return domainconflicts.SeverityMedium
	}
}

// resolvableByPreemption reports whether each excess game outranks a distinct
// lower-priority holder whose source could serve it during w.
func (s *snapshot) resolvableByPreemption(c domainconflicts.SchedulingConflict, w timeutil.Window) bool {
	var holders []holder
	for _, h := range s.holders {
		if h.alloc.Status == allocations.StatusActive && h.alloc.Window().Overlaps(w) {
			holders = append(holders, h)
		}
	}
	sort.SliceStable(holders, func(i, j int) bool {
		if holders[i].priority != holders[j].priority {
			return holders[i].priority < holders[j].priority
		}
		return holders[i].alloc.SourceID < holders[j].alloc.SourceID
	})

	taken := map[string]bool{}
	for _, g := range c.Games {
		if !g.Excess {
			continue
		}
		networks := s.networksOf(g.GameID)
		matched := false
		for _, h := range holders {
			if taken[h.alloc.ID] || h.priority >= g.Priority {
				continue
			}
			src, ok := s.source(h.alloc.SourceID)
			if !ok || !src.IsActive || !src.CanServe(networks) {
				continue
			}
			taken[h.alloc.ID] = true
			matched = true
			break
		}
		if !matched {
			return false
		}
	}
	return true
}

func (s *snapshot) networksOf(gameID string) []string {
	for _, d := range s.demands {
		if d.game.Game.ID == gameID {
			return d.game.Game.Networks
		}
	}
	return nil
}
