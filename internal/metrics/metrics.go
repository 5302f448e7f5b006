package metrics

import (
	"sync"
	"time"
)

type feedStats struct {
	calls           int
	errors          int
	rateLimitHits   int
	lastRetryAfter  time.Duration
	lastCallLatency time.Duration
}

type tickStats struct {
	runs    int
	skipped int
	errors  int
}

// Recorder keeps in-memory counters for scheduler activity and forwards
// them to OpenTelemetry instruments when metrics are enabled.
type Recorder struct {
	mu          sync.Mutex
	feeds       map[string]*feedStats
	ticks       tickStats
	allocations map[string]int
	tunes       map[string]int
	conflicts   map[string]int
	otel        *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		feeds:       make(map[string]*feedStats),
		allocations: make(map[string]int),
		tunes:       make(map[string]int),
		conflicts:   make(map[string]int),
		otel:        otel,
	}
}

// RecordFeedAttempt increments counters for a feed call and stores the last observed latency.
func (r *Recorder) RecordFeedAttempt(feed string, duration time.Duration, err error) {
	if r == nil {
		return
	}

	r.mu.Lock()
	stats := r.ensureFeed(feed)
	stats.calls++
	stats.lastCallLatency = duration
	if err != nil {
		stats.errors++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordFeedAttempt(feed, duration, err)
	}
}

// RecordRateLimit tracks that a feed response hit a rate limit and stores the last Retry-After.
func (r *Recorder) RecordRateLimit(feed string, retryAfter time.Duration) {
	if r == nil {
		return
	}

	r.mu.Lock()
	stats := r.ensureFeed(feed)
	stats.rateLimitHits++
	if retryAfter > 0 {
		stats.lastRetryAfter = retryAfter
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordRateLimit(feed, retryAfter)
	}
}

// Snapshot is a copy of the stats recorded for one feed.
type Snapshot struct {
	Calls           int
	Errors          int
	RateLimitHits   int
	LastRetryAfter  time.Duration
	LastCallLatency time.Duration
}

// Snapshot returns a copy of the current stats for the feed.
func (r *Recorder) Snapshot(feed string) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.feeds[feed]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		Calls:           stats.calls,
		Errors:          stats.errors,
		RateLimitHits:   stats.rateLimitHits,
		LastRetryAfter:  stats.lastRetryAfter,
		LastCallLatency: stats.lastCallLatency,
	}
}

// RecordTick tracks an allocation pass. Skipped passes lost the tick lease.
func (r *Recorder) RecordTick(duration time.Duration, skipped bool, err error) {
	if r == nil {
		return
	}

	r.mu.Lock()
	switch {
	case skipped:
		r.ticks.skipped++
	default:
		r.ticks.runs++
	}
	if err != nil {
		r.ticks.errors++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordTick(duration, skipped, err)
	}
}

// TickStats returns completed, skipped, and failed tick counts.
func (r *Recorder) TickStats() (runs, skipped, errors int) {
	if r == nil {
		return 0, 0, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks.runs, r.ticks.skipped, r.ticks.errors
}

// RecordAllocationEvent counts an allocation lifecycle event.
func (r *Recorder) RecordAllocationEvent(event string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.allocations[event]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordAllocationEvent(event)
	}
}

// AllocationEvents returns how many times event was recorded.
func (r *Recorder) AllocationEvents(event string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocations[event]
}

// RecordTuneAttempt tracks a tune command sent to a source.
func (r *Recorder) RecordTuneAttempt(sourceType string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.mu.Lock()
	r.tunes[outcome]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordTune(sourceType, outcome, duration)
	}
}

// TuneAttempts returns tune attempts by outcome ("ok" or "error").
func (r *Recorder) TuneAttempts(outcome string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tunes[outcome]
}

// RecordConflicts records the conflicts found by one detection run.
func (r *Recorder) RecordConflicts(bySeverity map[string]int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	for severity, n := range bySeverity {
		r.conflicts[severity] += n
	}
	r.mu.Unlock()

	if r.otel != nil {
		for severity, n := range bySeverity {
			r.otel.recordConflicts(severity, n)
		}
	}
}

// Conflicts returns the running total for severity.
func (r *Recorder) Conflicts(severity string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflicts[severity]
}

// RecordHTTPRequest tracks basic HTTP metrics.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil || r.otel == nil {
		return
	}
	r.otel.recordHTTPRequest(method, path, status, duration)
}

// RecordPollerCycle tracks feed poller cycles and errors.
func (r *Recorder) RecordPollerCycle(duration time.Duration, err error) {
	if r == nil || r.otel == nil {
		return
	}
	r.otel.recordPoller(duration, err)
}

func (r *Recorder) ensureFeed(feed string) *feedStats {
	stats, ok := r.feeds[feed]
	if !ok {
		stats = &feedStats{}
		r.feeds[feed] = stats
	}
	return stats
}
