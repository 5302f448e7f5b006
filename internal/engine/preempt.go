package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
)

type victim struct {
	alloc    allocations.Allocation
	source   sources.InputSource
	priority int
}

// preempt takes a source from the lowest-gap lower-priority active allocation.
func (e *Engine) preempt(ctx context.Context, st *tickState, cand appgames.Candidate) (bool, error) {
	victims, err := e.victimsFor(ctx, st, cand)
	if err != nil {
		return false, err
	}
	if len(victims) == 0 {
		return false, nil
	}
	v := victims[0]
	id := e.newID()
	reason := fmt.Sprintf("preempted by %s (priority %d > %d)", cand.Game.Matchup(), cand.Game.CalculatedPriority, v.priority)

	if _, err := e.store.Update(ctx, v.alloc.ID, func(next *allocations.Allocation) error {
		if err := store.Transition(allocations.StatusPreempted, st.now, reason)(next); err != nil {
			return err
		}
		next.PreemptedByAllocationID = id
		return nil
	}); err != nil {
		if _, ok := allocations.AsInvalidTransition(err); ok {
			st.drop(v.alloc.ID)
		}
		return false, fmt.Errorf("preempt allocation %s: %w", v.alloc.ID, err)
	}
	st.drop(v.alloc.ID)
	e.freeSource(v.alloc)
	st.report.Preempted++
	e.metrics.RecordAllocationEvent(metrics.EventPreempted)
	logging.Info(e.logger, "allocation preempted",
		logging.FieldAllocationID, v.alloc.ID,
		logging.FieldSourceID, v.alloc.SourceID,
		logging.FieldGameID, v.alloc.GameID,
		"preempted_by", id,
		logging.FieldReason, reason,
	)

	st.preemptors[id] = true
	if err := e.allocate(ctx, st, cand, v.source, id); err != nil {
		if errors.Is(err, errSourceTaken) {
			return false, fmt.Errorf("source %s claimed after preemption", v.source.ID)
		}
		return false, err
	}
	return true, nil
}

// victimsFor lists preemptable allocations ordered by smallest priority gap,
// then source id.
func (e *Engine) victimsFor(ctx context.Context, st *tickState, cand appgames.Candidate) ([]victim, error) {
	game := cand.Game
	overridden, err := e.overrides.ActiveSet(ctx, st.now)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	var out []victim
	for _, id := range sortedIDs(st.holding) {
		a := st.holding[id]
		if a.Status != allocations.StatusActive || a.GameID == game.ID {
			continue
		}
		if !st.now.Before(a.ExpectedFreeAt) || anyIn(a.Displays, overridden) {
			continue
		}
		src, err := e.registry.Get(a.SourceID)
		if err != nil || !src.IsActive || !src.CanServe(game.Networks) {
			continue
		}
		priority, minDisplays := a.Priority, 0
		if current, ok := e.games.Candidate(a.GameID); ok {
			priority, minDisplays = current.Game.CalculatedPriority, current.Priority.MinDisplays
		}
		if priority >= game.CalculatedPriority {
			continue
		}
		if minDisplays > 0 && len(st.forGame(a.GameID)) <= 1 {
			// Taking its only source would drop that game below its display floor.
			continue
		}
		out = append(out, victim{alloc: a, source: src, priority: priority})
	}

	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := game.CalculatedPriority-out[i].priority, game.CalculatedPriority-out[j].priority
		if gi != gj {
			return gi < gj
		}
		return out[i].source.ID < out[j].source.ID
	})
	return out, nil
}
