package engine

import (
	"context"
	"fmt"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/registry"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
)

// Reconcile aligns the registry with persisted allocations after a restart.
// Pending allocations were never confirmed and are cancelled; active ones
// re-claim their sources. Actives whose source disappeared from inventory
// are completed.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	release, ok, err := e.lease.TryAcquire(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("acquire tick lease: %w", err)
	}
	if !ok {
		return ReconcileReport{}, ErrTickInProgress
	}
	defer release()

	holding, err := e.store.List(ctx, store.Holding())
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list holding allocations: %w", err)
	}
	now := e.now()

	var report ReconcileReport
	for _, a := range holding {
		switch a.Status {
		case allocations.StatusPending:
			if _, err := e.store.Update(ctx, a.ID, store.Transition(allocations.StatusCancelled, now, "unconfirmed at startup")); err != nil {
				logging.Error(e.logger, "discard pending allocation failed", err, logging.FieldAllocationID, a.ID)
				continue
			}
			e.freeSource(a)
			e.metrics.RecordAllocationEvent(metrics.EventCancelled)
			report.Discarded = append(report.Discarded, a.ID)

		case allocations.StatusActive:
			err := e.registry.MarkAllocated(a.SourceID, a.GameID)
			switch {
			case err == nil:
				report.Restored = append(report.Restored, a.ID)
			case registry.IsSourceAlreadyAllocated(err):
				holder, _, _ := e.registry.HolderOf(a.SourceID)
				if holder == a.GameID {
					report.Restored = append(report.Restored, a.ID)
					continue
				}
				logging.Warn(e.logger, "source claimed by another game at startup",
					logging.FieldAllocationID, a.ID,
					logging.FieldSourceID, a.SourceID,
					logging.FieldGameID, holder,
				)
			case registry.IsSourceNotFound(err):
				if _, err := e.store.Update(ctx, a.ID, store.Transition(allocations.StatusCompleted, now, "source removed from inventory")); err != nil {
					logging.Error(e.logger, "retire orphaned allocation failed", err, logging.FieldAllocationID, a.ID)
					continue
				}
				e.metrics.RecordAllocationEvent(metrics.EventCompleted)
				report.Orphaned = append(report.Orphaned, a.ID)
			default:
				return report, fmt.Errorf("restore allocation %s: %w", a.ID, err)
			}
		}
	}

	logging.Info(e.logger, "startup reconciliation complete",
		"discarded", len(report.Discarded),
		"restored", len(report.Restored),
		"orphaned", len(report.Orphaned),
	)
	return report, nil
}
