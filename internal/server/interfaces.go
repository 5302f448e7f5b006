package server

import (
	"context"

	"github.com/preston-bernstein/venue-scheduler/internal/engine"
	"github.com/preston-bernstein/venue-scheduler/internal/poller"
)

// Poller defines the minimal poller behavior needed by the server.
type Poller interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Refresh(ctx context.Context)
	Status() poller.Status
}

// Scheduler is the allocation loop as the server drives it.
type Scheduler interface {
	Reconcile(ctx context.Context) (engine.ReconcileReport, error)
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}
