package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/registry"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
	"github.com/preston-bernstein/venue-scheduler/internal/tuner"
)

// errSourceTaken means the chosen source was claimed between listing and
// allocation; the caller moves on to the next source.
var errSourceTaken = errors.New("source claimed concurrently")

// tickState is the working view of holding allocations during one tick.
type tickState struct {
	now     time.Time
	report  *TickReport
	holding map[string]allocations.Allocation
	busy    map[string]bool

	// preemptors holds ids of allocations created to replace a preempted
	// one; the victim points at them, so they are cancelled, never deleted.
	preemptors map[string]bool
}

func newTickState(now time.Time, report *TickReport, holding []allocations.Allocation) *tickState {
	st := &tickState{
		now:        now,
		report:     report,
		holding:    make(map[string]allocations.Allocation, len(holding)),
		busy:       make(map[string]bool),
		preemptors: make(map[string]bool),
	}
	for _, a := range holding {
		st.hold(a)
	}
	return st
}

func (st *tickState) hold(a allocations.Allocation) {
	st.holding[a.ID] = a
	for _, d := range a.Displays {
		st.busy[d] = true
	}
}

func (st *tickState) drop(id string) {
	a, ok := st.holding[id]
	if !ok {
		return
	}
	delete(st.holding, id)
	for _, d := range a.Displays {
		delete(st.busy, d)
	}
}

func (st *tickState) forGame(gameID string) []allocations.Allocation {
	var out []allocations.Allocation
	for _, a := range st.holding {
		if a.GameID == gameID {
			out = append(out, a)
		}
	}
	store.SortByAllocatedAt(out)
	return out
}

// Tick runs one allocation pass: release what is done, then walk candidate
// games in priority order binding, retaining, or preempting sources.
// A tick that cannot take the lease returns ErrTickInProgress and changes nothing.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	release, ok, err := e.lease.TryAcquire(ctx)
	if err != nil {
		e.metrics.RecordTick(0, false, err)
		return TickReport{}, fmt.Errorf("acquire tick lease: %w", err)
	}
	if !ok {
		e.metrics.RecordTick(0, true, nil)
		return TickReport{}, ErrTickInProgress
	}
	defer release()

	wall := time.Now()
	report := TickReport{StartedAt: e.now()}
	err = e.tick(ctx, &report)
	report.Duration = time.Since(wall)
	e.metrics.RecordTick(report.Duration, false, err)
	if err != nil {
		return report, err
	}

	e.lastMu.Lock()
	e.last = report
	e.lastMu.Unlock()
	return report, nil
}

func (e *Engine) tick(ctx context.Context, report *TickReport) error {
	now := report.StartedAt
	holding, err := e.store.List(ctx, store.Holding())
	if err != nil {
		return fmt.Errorf("list holding allocations: %w", err)
	}
	st := newTickState(now, report, holding)

	e.releasePass(ctx, st)

	report.StaleData = e.games.IsStale(now)
	candidates := e.games.Candidates(now, e.cfg.LookAhead)
	report.Considered = len(candidates)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		allocated, err := e.scheduleGame(ctx, st, cand)
		if err != nil {
			report.Errors++
			logging.Error(e.logger, "game scheduling failed", err,
				logging.FieldGameID, cand.Game.ID,
				logging.FieldPriority, cand.Game.CalculatedPriority,
			)
		}
		if !allocated {
			report.Unallocated = append(report.Unallocated, cand.Game.ID)
		}
	}
	return nil
}

// releasePass frees allocations whose game is over or whose window and
// buffer have elapsed. Live games with a display floor get their window
// extended instead.
func (e *Engine) releasePass(ctx context.Context, st *tickState) {
	for _, id := range sortedIDs(st.holding) {
		a := st.holding[id]
		if err := e.releaseOne(ctx, st, a); err != nil {
			st.report.Errors++
			logging.Error(e.logger, "release failed", err,
				logging.FieldAllocationID, a.ID,
				logging.FieldGameID, a.GameID,
			)
		}
	}
}

func (e *Engine) releaseOne(ctx context.Context, st *tickState, a allocations.Allocation) error {
	cand, known := e.games.Candidate(a.GameID)
	game := cand.Game

	var reason string
	switch {
	case known && game.Status.IsTerminal():
		reason = "game " + string(game.Status)
	case st.now.Before(a.ExpectedFreeAt):
		return nil
	case known && game.Status.IsLive() && cand.Priority.MinDisplays > 0:
		return e.extend(ctx, st, a, game.EstimatedEnd)
	case !known:
		reason = "game no longer in feed"
	default:
		reason = "release buffer elapsed"
	}

	guarded, err := e.touchesOverride(ctx, st.now, a.Displays)
	if err != nil {
		return err
	}
	if guarded {
		logging.Info(e.logger, "release deferred: display under manual override",
			logging.FieldAllocationID, a.ID,
			logging.FieldGameID, a.GameID,
		)
		return nil
	}
	return e.finish(ctx, st, a, reason)
}

// finish moves a holding allocation to its terminal state and frees the source.
// Pending allocations are cancelled; active ones complete.
func (e *Engine) finish(ctx context.Context, st *tickState, a allocations.Allocation, reason string) error {
	to, event := allocations.StatusCompleted, metrics.EventCompleted
	if a.Status == allocations.StatusPending {
		to, event = allocations.StatusCancelled, metrics.EventCancelled
	}
	if _, err := e.store.Update(ctx, a.ID, store.Transition(to, st.now, reason)); err != nil {
		return fmt.Errorf("release allocation %s: %w", a.ID, err)
	}
	st.drop(a.ID)
	if to == allocations.StatusCancelled {
		st.report.Cancelled++
	} else {
		st.report.Completed++
	}
	e.metrics.RecordAllocationEvent(event)
	e.freeSource(a)

	logging.Info(e.logger, "allocation released",
		logging.FieldAllocationID, a.ID,
		logging.FieldSourceID, a.SourceID,
		logging.FieldGameID, a.GameID,
		logging.FieldStatus, string(to),
		logging.FieldReason, reason,
	)
	return nil
}

func (e *Engine) extend(ctx context.Context, st *tickState, a allocations.Allocation, estimatedEnd time.Time) error {
	base := estimatedEnd
	if base.Before(st.now) {
		base = st.now
	}
	until := base.Add(e.cfg.ReleaseBuffer)
	if !until.After(st.now) {
		until = st.now.Add(time.Minute)
	}
	updated, err := e.store.Update(ctx, a.ID, func(next *allocations.Allocation) error {
		next.ExpectedFreeAt = until
		return nil
	})
	if err != nil {
		return fmt.Errorf("extend allocation %s: %w", a.ID, err)
	}
	st.holding[a.ID] = updated
	st.report.Extended++
	e.metrics.RecordAllocationEvent(metrics.EventExtended)
	logging.Info(e.logger, "allocation extended for live game",
		logging.FieldAllocationID, a.ID,
		logging.FieldGameID, a.GameID,
		"expected_free_at", until,
	)
	return nil
}

func (e *Engine) freeSource(a allocations.Allocation) {
	if _, err := e.registry.ReleaseIfHeldBy(a.SourceID, a.GameID); err != nil && !registry.IsSourceNotFound(err) {
		logging.Warn(e.logger, "source release failed",
			logging.FieldSourceID, a.SourceID,
			logging.FieldError, err,
		)
	}
}

// scheduleGame gives one candidate a source. It reports whether the game
// ends the step holding one.
func (e *Engine) scheduleGame(ctx context.Context, st *tickState, cand appgames.Candidate) (bool, error) {
	game := cand.Game
	for _, existing := range st.forGame(game.ID) {
		src, err := e.registry.Get(existing.SourceID)
		if err == nil && src.IsActive && src.CanServe(game.Networks) {
			if existing.Status == allocations.StatusPending {
				guarded, gerr := e.touchesOverride(ctx, st.now, existing.Displays)
				if gerr != nil {
					return false, gerr
				}
				if guarded {
					// Confirming would re-tune displays the operator owns.
					st.report.Retained++
					return true, nil
				}
				return e.confirmPending(ctx, st, existing, src)
			}
			st.report.Retained++
			return true, nil
		}
		guarded, gerr := e.touchesOverride(ctx, st.now, existing.Displays)
		if gerr != nil {
			return false, gerr
		}
		if guarded {
			// The operator owns these displays; leave the binding as it is.
			return true, nil
		}
		if err := e.finish(ctx, st, existing, "source no longer serves game"); err != nil {
			return false, err
		}
	}

	for _, src := range e.availableFor(game.Networks) {
		err := e.allocate(ctx, st, cand, src, e.newID())
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errSourceTaken):
			continue
		default:
			return false, err
		}
	}

	return e.preempt(ctx, st, cand)
}

// availableFor lists free active sources carrying any of the networks,
// strongest first.
func (e *Engine) availableFor(networks []string) []sources.InputSource {
	if len(networks) == 0 {
		out := e.registry.ListAvailable(nil)
		sources.ByRank(out)
		return out
	}
	seen := make(map[string]bool)
	var out []sources.InputSource
	for _, network := range networks {
		for _, src := range e.registry.ListAvailable([]string{network}) {
			if seen[src.ID] {
				continue
			}
			seen[src.ID] = true
			out = append(out, src)
		}
	}
	sources.ByRank(out)
	return out
}

// allocate records a pending allocation, claims the source, tunes it, and
// activates the record. Any failure after the claim rolls both back.
func (e *Engine) allocate(ctx context.Context, st *tickState, cand appgames.Candidate, src sources.InputSource, id string) error {
	game := cand.Game
	tuning, ok := src.Tuning(game.Networks)
	if !ok {
		return errSourceTaken
	}
	overridden, err := e.overrides.ActiveSet(ctx, st.now)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	picked, quality := e.pickDisplays(cand, st.busy, overridden)
	quality = withNetwork(quality, tuning.Network, game.Networks)

	a := allocations.Allocation{
		ID:             id,
		SourceID:       src.ID,
		SourceType:     src.Type,
		GameID:         game.ID,
		Network:        tuning.Network,
		Channel:        tuning.Channel,
		Priority:       game.CalculatedPriority,
		AllocatedAt:    st.now,
		ExpectedFreeAt: e.expectedFree(game.EstimatedEnd, st.now),
		Status:         allocations.StatusPending,
		Quality:        quality,
	}
	a.SetDisplays(picked)

	if err := e.store.Create(ctx, a); err != nil {
		var held *store.SourceHeldError
		if errors.As(err, &held) {
			return errSourceTaken
		}
		return fmt.Errorf("create allocation: %w", err)
	}
	if err := e.registry.MarkAllocated(src.ID, game.ID); err != nil {
		if derr := e.discardPending(ctx, st, id, "source claim failed: "+err.Error()); derr != nil {
			logging.Warn(e.logger, "pending allocation cleanup failed", logging.FieldAllocationID, id, logging.FieldError, derr)
		}
		if registry.IsSourceAlreadyAllocated(err) {
			return errSourceTaken
		}
		return fmt.Errorf("claim source %s: %w", src.ID, err)
	}
	st.hold(a)
	st.report.Created++
	e.metrics.RecordAllocationEvent(metrics.EventCreated)

	_, err = e.confirmPending(ctx, st, a, src)
	return err
}

// confirmPending tunes the source for a pending allocation and activates it.
// On any failure, confirmation timeouts included, the pending record is
// discarded and the source freed so the game is retried on the next tick.
func (e *Engine) confirmPending(ctx context.Context, st *tickState, a allocations.Allocation, src sources.InputSource) (bool, error) {
	req := tuner.Request{
		SourceID:   a.SourceID,
		SourceType: src.Type,
		Network:    a.Network,
		Channel:    a.Channel,
		Displays:   a.Displays,
	}
	started := time.Now()
	err := tuner.Confirm(ctx, e.tuner, req, e.cfg.TuneTimeout)
	e.metrics.RecordTuneAttempt(string(src.Type), time.Since(started), err)
	if err != nil {
		e.rollback(ctx, st, a, err)
		return false, fmt.Errorf("tune source %s for game %s: %w", a.SourceID, a.GameID, err)
	}

	activated, err := e.store.Update(ctx, a.ID, store.Transition(allocations.StatusActive, st.now, ""))
	if err != nil {
		e.rollback(ctx, st, a, err)
		return false, fmt.Errorf("activate allocation %s: %w", a.ID, err)
	}
	st.hold(activated)
	st.report.Activated++
	e.metrics.RecordAllocationEvent(metrics.EventActivated)
	logging.Info(e.logger, "allocation active",
		logging.FieldAllocationID, a.ID,
		logging.FieldSourceID, a.SourceID,
		logging.FieldGameID, a.GameID,
		logging.FieldPriority, a.Priority,
		"channel", a.Channel,
		"displays", a.Displays,
	)
	return true, nil
}

func (e *Engine) rollback(ctx context.Context, st *tickState, a allocations.Allocation, cause error) {
	// Rollback must land even when the tick context is cancelled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TuneTimeout)
	defer cancel()
	if err := e.discardPending(cctx, st, a.ID, "tune failed: "+cause.Error()); err != nil {
		logging.Error(e.logger, "rollback discard failed", err, logging.FieldAllocationID, a.ID)
	}
	st.drop(a.ID)
	e.freeSource(a)
	st.report.RolledBack++
	e.metrics.RecordAllocationEvent(metrics.EventRollback)
	logging.Warn(e.logger, "allocation rolled back",
		logging.FieldAllocationID, a.ID,
		logging.FieldSourceID, a.SourceID,
		logging.FieldGameID, a.GameID,
		logging.FieldReason, cause.Error(),
		slog.Bool("timeout", tuner.IsConfirmationTimeout(cause)),
	)
}

// discardPending removes a pending allocation that never went live.
// Allocations created by preemption are cancelled instead, keeping the
// victim's back-reference resolvable.
func (e *Engine) discardPending(ctx context.Context, st *tickState, id, reason string) error {
	if st.preemptors[id] {
		_, err := e.store.Update(ctx, id, store.Transition(allocations.StatusCancelled, st.now, reason))
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if _, ok := allocations.AsInvalidTransition(err); !ok {
			return err
		}
	}
	if err := e.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) expectedFree(estimatedEnd, now time.Time) time.Time {
	until := estimatedEnd.Add(e.cfg.ReleaseBuffer)
	if !until.After(now) {
		until = now.Add(e.cfg.ReleaseBuffer + time.Minute)
	}
	return until
}

func (e *Engine) touchesOverride(ctx context.Context, now time.Time, displayIDs []string) (bool, error) {
	if len(displayIDs) == 0 {
		return false, nil
	}
	overridden, err := e.overrides.ActiveSet(ctx, now)
	if err != nil {
		return false, fmt.Errorf("load overrides: %w", err)
	}
	for _, id := range displayIDs {
		if overridden[id] {
			return true, nil
		}
	}
	return false, nil
}
