package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domaingames "github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/feed"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
)

const (
	defaultInterval  = 60 * time.Second
	defaultLookAhead = 4 * time.Hour
	// lookBehind reaches back far enough to keep long games that are still live.
	lookBehind = 6 * time.Hour
	// retention keeps finished games visible on /games for the rest of the night.
	retention = 12 * time.Hour
)

// GameSink receives feed refreshes.
type GameSink interface {
	Ingest(games []domaingames.Game, at time.Time) []string
	Prune(cutoff time.Time) int
}

// LiveFunc is called with the ids of games that just went live.
type LiveFunc func(ctx context.Context, gameIDs []string)

// Poller fetches games on an interval and hands them to a GameSink.
type Poller struct {
	feed      feed.GameFeed
	sink      GameSink
	logger    *slog.Logger
	metrics   *metrics.Recorder
	interval  time.Duration
	lookAhead time.Duration
	now       func() time.Time
	onLive    LiveFunc

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool

	statusMu sync.RWMutex
	status   Status
}

// Status describes the recent health of the poller loop.
type Status struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastAttempt         time.Time `json:"lastAttempt"`
	LastSuccess         time.Time `json:"lastSuccess"`
}

// IsReady reports whether the poller has had a recent success and is not failing repeatedly.
func (s Status) IsReady() bool {
	if s.LastSuccess.IsZero() {
		return false
	}
	return s.ConsecutiveFailures < 3
}

// New constructs a Poller with sane defaults.
func New(source feed.GameFeed, sink GameSink, logger *slog.Logger, recorder *metrics.Recorder, interval, lookAhead time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if lookAhead <= 0 {
		lookAhead = defaultLookAhead
	}
	return &Poller{
		feed:      source,
		sink:      sink,
		logger:    logger,
		metrics:   recorder,
		interval:  interval,
		lookAhead: lookAhead,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// OnLive registers fn to run after a refresh in which games went live.
// It must be called before Start.
func (p *Poller) OnLive(fn LiveFunc) {
	p.onLive = fn
}

// Start begins polling until the context is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.startMu.Lock()
	if p.started {
		p.startMu.Unlock()
		return
	}
	p.started = true
	p.startMu.Unlock()

	p.ticker = time.NewTicker(p.interval)

	go func() {
		p.logInfo("poller started", slog.Int64(logging.FieldDurationMS, p.interval.Milliseconds()))
		// Initial fetch to warm data on boot.
		p.fetchOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				p.stopTicker()
				p.logInfo("poller stopped")
				return
			case <-p.done:
				p.stopTicker()
				p.logInfo("poller stopped")
				return
			case <-p.ticker.C:
				p.fetchOnce(ctx)
			}
		}
	}()
}

// Stop halts the polling loop.
func (p *Poller) Stop(ctx context.Context) error {
	_ = ctx
	p.stopOnce.Do(func() {
		close(p.done)
		p.stopTicker()
	})
	return nil
}

// Refresh runs one fetch immediately, outside the ticker.
func (p *Poller) Refresh(ctx context.Context) {
	p.fetchOnce(ctx)
}

func (p *Poller) fetchOnce(ctx context.Context) {
	start := time.Now()
	now := p.now()
	p.recordAttempt(now)

	list, err := p.feed.FetchGames(ctx, now.Add(-lookBehind), now.Add(p.lookAhead))
	if p.metrics != nil {
		p.metrics.RecordPollerCycle(time.Since(start), err)
	}
	if err != nil {
		p.logError("poller fetch failed", err, slog.Int64(logging.FieldDurationMS, time.Since(start).Milliseconds()))
		p.recordFailure(err, now)
		return
	}

	live := p.sink.Ingest(list, now)
	pruned := p.sink.Prune(now.Add(-retention))
	p.recordSuccess(now)
	p.logInfo("poller refreshed games",
		logging.FieldCount, len(list),
		"pruned", pruned,
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if len(live) > 0 && p.onLive != nil {
		p.logInfo("games went live", "game_ids", live)
		p.onLive(ctx, live)
	}
}

func (p *Poller) stopTicker() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

func (p *Poller) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Poller) logError(msg string, err error, attrs ...any) {
	if p.logger != nil {
		p.logger.Error(msg, append(attrs, logging.FieldError, err)...)
	}
}

func (p *Poller) recordAttempt(at time.Time) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.LastAttempt = at
}

func (p *Poller) recordSuccess(at time.Time) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.ConsecutiveFailures = 0
	p.status.LastError = ""
	p.status.LastSuccess = at
}

func (p *Poller) recordFailure(err error, at time.Time) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.ConsecutiveFailures++
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.status.LastAttempt = at
}

// Status returns a snapshot of the poller's recent health.
func (p *Poller) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}
