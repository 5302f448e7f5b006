// Package engine runs the allocation control loop: the only writer of
// allocation state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/lease"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
	"github.com/preston-bernstein/venue-scheduler/internal/tuner"
)

const (
	defaultTickInterval  = 45 * time.Second
	defaultLookAhead     = 4 * time.Hour
	defaultReleaseBuffer = 15 * time.Minute
	defaultTuneTimeout   = 5 * time.Second
)

// ErrTickInProgress is returned when another tick holds the lease.
var ErrTickInProgress = errors.New("allocation tick already in progress")

// GameSource supplies scored games.
type GameSource interface {
	Candidates(now time.Time, horizon time.Duration) []appgames.Candidate
	Candidate(id string) (appgames.Candidate, bool)
	IsStale(now time.Time) bool
}

// SourceRegistry is the subset of the input source registry the engine drives.
type SourceRegistry interface {
	Get(sourceID string) (sources.InputSource, error)
	List() []sources.InputSource
	ListAvailable(needs []string) []sources.InputSource
	MarkAllocated(sourceID, gameID string) error
	ReleaseIfHeldBy(sourceID, gameID string) (bool, error)
	HolderOf(sourceID string) (string, bool, error)
}

// OverrideChecker reports which displays are under manual control.
type OverrideChecker interface {
	ActiveSet(ctx context.Context, now time.Time) (map[string]bool, error)
}

// Config holds the engine's timing knobs and venue layout.
type Config struct {
	TickInterval  time.Duration
	LookAhead     time.Duration
	ReleaseBuffer time.Duration
	TuneTimeout   time.Duration
	Displays      []displays.Display
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Games     GameSource
	Registry  SourceRegistry
	Store     store.AllocationStore
	Overrides OverrideChecker
	Tuner     tuner.Tuner
	Lease     lease.Lease
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Engine decides which source serves which game on every tick.
type Engine struct {
	cfg       Config
	games     GameSource
	registry  SourceRegistry
	store     store.AllocationStore
	overrides OverrideChecker
	tuner     tuner.Tuner
	lease     lease.Lease
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
	newID     func() string

	ticker   *time.Ticker
	trigger  chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool

	lastMu sync.RWMutex
	last   TickReport
}

// New constructs an Engine, filling unset durations and collaborators with defaults.
func New(cfg Config, deps Deps) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = defaultLookAhead
	}
	if cfg.ReleaseBuffer < 0 {
		cfg.ReleaseBuffer = defaultReleaseBuffer
	}
	if cfg.TuneTimeout <= 0 {
		cfg.TuneTimeout = defaultTuneTimeout
	}
	if deps.Tuner == nil {
		deps.Tuner = tuner.Noop{Logger: deps.Logger}
	}
	if deps.Lease == nil {
		deps.Lease = lease.NewLocal()
	}
	return &Engine{
		cfg:       cfg,
		games:     deps.Games,
		registry:  deps.Registry,
		store:     deps.Store,
		overrides: deps.Overrides,
		tuner:     deps.Tuner,
		lease:     deps.Lease,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
		newID:     uuid.NewString,
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start runs ticks on the interval and on Trigger until ctx ends or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.startMu.Lock()
	if e.started {
		e.startMu.Unlock()
		return
	}
	e.started = true
	e.startMu.Unlock()

	e.ticker = time.NewTicker(e.cfg.TickInterval)

	go func() {
		defer close(e.stopped)
		logging.Info(e.logger, "allocation engine started", slog.Int64(logging.FieldDurationMS, e.cfg.TickInterval.Milliseconds()))
		e.runTick(ctx, "startup")

		for {
			select {
			case <-ctx.Done():
				e.ticker.Stop()
				logging.Info(e.logger, "allocation engine stopped")
				return
			case <-e.done:
				e.ticker.Stop()
				logging.Info(e.logger, "allocation engine stopped")
				return
			case <-e.ticker.C:
				e.runTick(ctx, "interval")
			case <-e.trigger:
				e.runTick(ctx, "trigger")
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish or ctx to end.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		close(e.done)
	})
	e.startMu.Lock()
	started := e.started
	e.startMu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a tick as soon as the loop is free. Requests made while
// one is already queued are coalesced.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// OnGamesLive adapts Trigger to the poller's live-game callback.
func (e *Engine) OnGamesLive(ctx context.Context, gameIDs []string) {
	logging.Info(logging.FromContext(ctx, e.logger), "tick triggered by live games", logging.FieldCount, len(gameIDs))
	e.Trigger()
}

// LastTick returns the report of the most recent completed tick.
func (e *Engine) LastTick() TickReport {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last
}

func (e *Engine) runTick(ctx context.Context, cause string) {
	report, err := e.Tick(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		logging.Info(e.logger, "tick skipped: lease held", "cause", cause)
	case err != nil:
		logging.Error(e.logger, "tick failed", err, "cause", cause)
	default:
		logging.Info(e.logger, "tick complete",
			"cause", cause,
			"considered", report.Considered,
			"created", report.Created,
			"preempted", report.Preempted,
			"released", report.Completed+report.Cancelled,
			"unallocated", len(report.Unallocated),
			logging.FieldDurationMS, report.Duration.Milliseconds(),
		)
	}
}
