package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/overrides"
	"github.com/preston-bernstein/venue-scheduler/internal/priority"
	"github.com/preston-bernstein/venue-scheduler/internal/registry"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
	"github.com/preston-bernstein/venue-scheduler/internal/teststubs"
	"github.com/preston-bernstein/venue-scheduler/internal/testutil"
)

type harness struct {
	now       time.Time
	games     *store.GameStore
	svc       *appgames.Service
	registry  *registry.Registry
	allocs    *store.MemoryAllocationStore
	overrides *overrides.Service
	tuner     *teststubs.StubTuner
	recorder  *metrics.Recorder
	engine    *Engine
	ids       int
}

type harnessOpts struct {
	prefs      []teams.Preference
	sources    []sources.InputSource
	displays   []displays.Display
	staleAfter time.Duration
}

func newHarness(t *testing.T, opts harnessOpts, list ...games.Game) *harness {
	t.Helper()
	h := &harness{
		now:      testutil.BaseTime,
		games:    store.NewGameStore(),
		registry: registry.New(opts.sources),
		allocs:   store.NewMemoryAllocationStore(),
		tuner:    &teststubs.StubTuner{},
		recorder: metrics.NewRecorder(),
	}
	clock := func() time.Time { return h.now }
	h.svc = appgames.NewService(h.games, priority.NewCalculator(priority.DefaultConfig()), opts.prefs, opts.staleAfter)
	h.svc.ReplaceGames(list, h.now)
	h.overrides = overrides.NewService(overrides.NewMemoryStore(), clock)

	h.engine = New(Config{
		LookAhead:     4 * time.Hour,
		ReleaseBuffer: 15 * time.Minute,
		TuneTimeout:   time.Second,
		Displays:      opts.displays,
	}, Deps{
		Games:     h.svc,
		Registry:  h.registry,
		Store:     h.allocs,
		Overrides: h.overrides,
		Tuner:     h.tuner,
		Metrics:   h.recorder,
	})
	h.engine.now = clock
	h.engine.newID = func() string {
		h.ids++
		return fmt.Sprintf("alloc-%d", h.ids)
	}
	return h
}

func (h *harness) setGames(list ...games.Game) {
	h.svc.ReplaceGames(list, h.now)
}

func (h *harness) tick(t *testing.T) TickReport {
	t.Helper()
	report, err := h.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	return report
}

func (h *harness) holding(t *testing.T) []allocations.Allocation {
	t.Helper()
	list, err := h.allocs.List(context.Background(), store.Holding())
	if err != nil {
		t.Fatalf("list holding: %v", err)
	}
	return list
}

func (h *harness) holdingFor(t *testing.T, gameID string) (allocations.Allocation, bool) {
	t.Helper()
	for _, a := range h.holding(t) {
		if a.GameID == gameID {
			return a, true
		}
	}
	return allocations.Allocation{}, false
}

func (h *harness) assertExclusive(t *testing.T) {
	t.Helper()
	bySource := map[string]string{}
	for _, a := range h.holding(t) {
		if other, ok := bySource[a.SourceID]; ok {
			t.Fatalf("source %s held by %s and %s", a.SourceID, other, a.ID)
		}
		bySource[a.SourceID] = a.ID
		holder, held, err := h.registry.HolderOf(a.SourceID)
		if err != nil || !held || holder != a.GameID {
			t.Fatalf("registry out of sync for %s: holder=%q held=%v err=%v", a.SourceID, holder, held, err)
		}
	}
}

func TestTickAllocatesHighestPriorityFirst(t *testing.T) {
	low := testutil.Matchup(testutil.SampleGame("low", testutil.BaseTime, "FOX"), "Jets", "Lions")
	high := testutil.Matchup(testutil.SampleGame("high", testutil.BaseTime, "FOX"), "Bears", "Packers")
	h := newHarness(t, harnessOpts{
		prefs:    []teams.Preference{testutil.SamplePreference("Packers", 90), testutil.SamplePreference("Lions", 20)},
		sources:  []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
		displays: []displays.Display{{ID: "tv-1"}, {ID: "tv-2"}},
	}, low, high)

	report := h.tick(t)

	a, ok := h.holdingFor(t, "high")
	if !ok {
		t.Fatalf("expected high priority game to hold a source")
	}
	if a.Status != allocations.StatusActive || a.SourceID != "box-1" || a.Channel != "FOX" {
		t.Fatalf("unexpected allocation %+v", a)
	}
	if a.Priority != 90 || !a.ExpectedFreeAt.Equal(high.EstimatedEnd.Add(15*time.Minute)) {
		t.Fatalf("unexpected priority/expiry %+v", a)
	}
	if _, ok := h.holdingFor(t, "low"); ok {
		t.Fatalf("expected low priority game to stay unallocated")
	}
	if report.Created != 1 || report.Activated != 1 || len(report.Unallocated) != 1 || report.Unallocated[0] != "low" {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.StartedAt.Equal(h.now) || report.Duration < 0 || report.Duration > time.Minute {
		t.Fatalf("expected start on the engine clock and wall-clock duration, got %s / %s", report.StartedAt, report.Duration)
	}
	reqs := h.tuner.Requests()
	if len(reqs) != 1 || reqs[0].SourceID != "box-1" || len(reqs[0].Displays) != 1 {
		t.Fatalf("unexpected tune requests %+v", reqs)
	}
	h.assertExclusive(t)
	if got := h.recorder.AllocationEvents(metrics.EventActivated); got != 1 {
		t.Fatalf("expected 1 activation event, got %d", got)
	}
}

func TestTickLeavesRunningAllocationsUntouched(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "ESPN")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "ESPN"), testutil.SampleSource("box-2", 5, "ESPN")},
	}, g)

	first := h.tick(t)
	a, _ := h.holdingFor(t, "g1")
	if a.SourceID != "box-2" {
		t.Fatalf("expected highest ranked source, got %s", a.SourceID)
	}
	if first.Created != 1 {
		t.Fatalf("unexpected first report %+v", first)
	}

	h.now = h.now.Add(time.Minute)
	second := h.tick(t)
	if second.Created != 0 || second.Retained != 1 {
		t.Fatalf("expected stable second tick, got %+v", second)
	}
	if len(h.tuner.Requests()) != 1 {
		t.Fatalf("expected no re-tune, got %d requests", len(h.tuner.Requests()))
	}
}

func TestTickPreemptsLowerPriorityAllocation(t *testing.T) {
	packers := teams.Preference{Name: "Packers", BasePriority: 90, AutoPromotePlayoff: true, Rivals: []string{"Bears"}}
	lions := testutil.SamplePreference("Lions", 20)

	busy := testutil.Matchup(testutil.SampleGame("lions", testutil.BaseTime, "FOX"), "Jets", "Lions")
	h := newHarness(t, harnessOpts{
		prefs: []teams.Preference{packers, lions},
		sources: []sources.InputSource{
			testutil.SampleSource("cable-a", 2, "FOX"),
			{ID: "firetv-b", Type: sources.TypeFireTV, Channels: map[string]string{"ESPN+": "espnplus"}, PriorityRank: 1, IsActive: true},
		},
		displays: []displays.Display{{ID: "tv-1"}, {ID: "tv-2"}},
	}, busy)
	h.tick(t)
	victim, ok := h.holdingFor(t, "lions")
	if !ok || victim.SourceID != "cable-a" {
		t.Fatalf("expected lions game on cable-a, got %+v", victim)
	}

	playoff := testutil.Matchup(testutil.SampleGame("packers", testutil.BaseTime.Add(30*time.Minute), "FOX"), "Bears", "Packers")
	playoff.SeasonType = games.SeasonPlayoff
	h.now = h.now.Add(10 * time.Minute)
	h.setGames(busy, playoff)

	report := h.tick(t)
	if report.Preempted != 1 {
		t.Fatalf("expected one preemption, got %+v", report)
	}

	winner, ok := h.holdingFor(t, "packers")
	if !ok || winner.SourceID != "cable-a" || winner.Status != allocations.StatusActive {
		t.Fatalf("expected packers game bound to cable-a, got %+v", winner)
	}
	preempted, err := h.allocs.Get(context.Background(), victim.ID)
	if err != nil {
		t.Fatalf("get victim: %v", err)
	}
	if preempted.Status != allocations.StatusPreempted || preempted.PreemptedByAllocationID != winner.ID {
		t.Fatalf("expected victim preempted by %s, got %+v", winner.ID, preempted)
	}
	if preempted.Reason == "" || preempted.ActuallyFreedAt == nil || !preempted.ActuallyFreedAt.Equal(h.now) {
		t.Fatalf("expected reason and freed time, got %+v", preempted)
	}
	if winner.Priority <= preempted.Priority {
		t.Fatalf("expected strictly higher priority, got %d vs %d", winner.Priority, preempted.Priority)
	}
	if _, ok := h.holdingFor(t, "lions"); ok {
		t.Fatalf("expected lions game left unallocated")
	}
	h.assertExclusive(t)
}

func TestPreemptionPicksSmallestPriorityGap(t *testing.T) {
	prefs := []teams.Preference{
		testutil.SamplePreference("Top", 100),
		testutil.SamplePreference("Mid", 60),
		testutil.SamplePreference("Low", 10),
	}
	mid := testutil.Matchup(testutil.SampleGame("mid", testutil.BaseTime, "CBS"), "X", "Mid")
	low := testutil.Matchup(testutil.SampleGame("low", testutil.BaseTime, "CBS"), "Y", "Low")
	h := newHarness(t, harnessOpts{
		prefs:   prefs,
		sources: []sources.InputSource{testutil.SampleSource("a", 1, "CBS"), testutil.SampleSource("b", 1, "CBS")},
	}, mid, low)
	h.tick(t)
	midAlloc, _ := h.holdingFor(t, "mid")

	top := testutil.Matchup(testutil.SampleGame("top", testutil.BaseTime, "CBS"), "Z", "Top")
	h.setGames(mid, low, top)
	h.tick(t)

	got, err := h.allocs.Get(context.Background(), midAlloc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != allocations.StatusPreempted {
		t.Fatalf("expected the smallest-gap allocation preempted, got %+v", got)
	}
	topAlloc, ok := h.holdingFor(t, "top")
	if !ok || topAlloc.SourceID != midAlloc.SourceID || got.PreemptedByAllocationID != topAlloc.ID {
		t.Fatalf("expected top to take %s, got %+v", midAlloc.SourceID, topAlloc)
	}
	// Mid then outranks low and displaces it in the same tick.
	if _, ok := h.holdingFor(t, "mid"); !ok {
		t.Fatalf("expected mid game to reclaim a source")
	}
	if _, ok := h.holdingFor(t, "low"); ok {
		t.Fatalf("expected low game displaced")
	}
	h.assertExclusive(t)
}

func TestFailedTuneAfterPreemptionKeepsBackReference(t *testing.T) {
	low := testutil.Matchup(testutil.SampleGame("low", testutil.BaseTime, "FOX"), "Jets", "Lions")
	h := newHarness(t, harnessOpts{
		prefs:   []teams.Preference{testutil.SamplePreference("Packers", 90), testutil.SamplePreference("Lions", 20)},
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
	}, low)
	h.tick(t)
	victim, ok := h.holdingFor(t, "low")
	if !ok {
		t.Fatalf("expected low game on box-1")
	}

	high := testutil.Matchup(testutil.SampleGame("high", testutil.BaseTime, "FOX"), "Bears", "Packers")
	h.setGames(low, high)
	h.tuner.Fail = map[string]bool{"box-1": true}
	h.now = h.now.Add(time.Minute)

	report := h.tick(t)
	// The freed box is offered back to the low game, whose tune fails too.
	if report.Preempted != 1 || report.RolledBack != 2 {
		t.Fatalf("expected preemption followed by rollbacks, got %+v", report)
	}
	preempted, err := h.allocs.Get(context.Background(), victim.ID)
	if err != nil || preempted.Status != allocations.StatusPreempted {
		t.Fatalf("expected victim preempted, got %+v err=%v", preempted, err)
	}
	replacement, err := h.allocs.Get(context.Background(), preempted.PreemptedByAllocationID)
	if err != nil {
		t.Fatalf("expected preempting allocation %q to resolve: %v", preempted.PreemptedByAllocationID, err)
	}
	if replacement.Status != allocations.StatusCancelled || replacement.GameID != "high" || replacement.Reason == "" {
		t.Fatalf("expected cancelled replacement with reason, got %+v", replacement)
	}
	if _, held, _ := h.registry.HolderOf("box-1"); held {
		t.Fatalf("expected box-1 freed after failed tune")
	}

	h.tuner.Fail = nil
	h.tick(t)
	if a, ok := h.holdingFor(t, "high"); !ok || a.SourceID != "box-1" {
		t.Fatalf("expected high game to take box-1 on retry, got %+v", a)
	}
	h.assertExclusive(t)
}

func TestPreemptionSkipsGameAtDisplayFloor(t *testing.T) {
	lions := testutil.SamplePreference("Lions", 20)
	lions.MinDisplays = 1
	held := testutil.Matchup(testutil.SampleGame("lions", testutil.BaseTime, "FOX"), "Jets", "Lions")
	h := newHarness(t, harnessOpts{
		prefs:    []teams.Preference{testutil.SamplePreference("Packers", 90), lions},
		sources:  []sources.InputSource{testutil.SampleSource("fox-box", 1, "FOX")},
		displays: []displays.Display{{ID: "tv-1"}, {ID: "tv-2"}},
	}, held)
	h.tick(t)
	before, ok := h.holdingFor(t, "lions")
	if !ok {
		t.Fatalf("expected lions game on fox-box")
	}

	packers := testutil.Matchup(testutil.SampleGame("packers", testutil.BaseTime, "FOX"), "Bears", "Packers")
	h.setGames(held, packers)
	h.now = h.now.Add(time.Minute)

	report := h.tick(t)
	if report.Preempted != 0 {
		t.Fatalf("expected the floor to block preemption, got %+v", report)
	}
	if len(report.Unallocated) != 1 || report.Unallocated[0] != "packers" {
		t.Fatalf("expected packers unallocated, got %+v", report.Unallocated)
	}
	after, err := h.allocs.Get(context.Background(), before.ID)
	if err != nil || after.Status != allocations.StatusActive {
		t.Fatalf("expected lions allocation untouched, got %+v err=%v", after, err)
	}
}

func TestTickRespectsManualOverride(t *testing.T) {
	low := testutil.Matchup(testutil.SampleGame("low", testutil.BaseTime, "NBC"), "A", "Lions")
	h := newHarness(t, harnessOpts{
		prefs:    []teams.Preference{testutil.SamplePreference("Lions", 20), testutil.SamplePreference("Giants", 1000)},
		sources:  []sources.InputSource{testutil.SampleSource("box-1", 1, "NBC")},
		displays: []displays.Display{{ID: "tv-1"}},
	}, low)
	h.tick(t)
	before, _ := h.holdingFor(t, "low")

	if _, err := h.overrides.Set(context.Background(), "tv-1", h.now.Add(10*time.Minute), "bartender"); err != nil {
		t.Fatalf("set override: %v", err)
	}
	urgent := testutil.Matchup(testutil.SampleGame("urgent", testutil.BaseTime, "NBC"), "B", "Giants")
	h.setGames(low, urgent)
	h.now = h.now.Add(time.Minute)

	report := h.tick(t)
	if report.Preempted != 0 {
		t.Fatalf("expected no preemption under override, got %+v", report)
	}
	after, err := h.allocs.Get(context.Background(), before.ID)
	if err != nil || after.Status != allocations.StatusActive {
		t.Fatalf("expected overridden allocation untouched, got %+v err=%v", after, err)
	}

	// Once the override lapses the urgent game takes the source.
	h.now = h.now.Add(10 * time.Minute)
	report = h.tick(t)
	if report.Preempted != 1 {
		t.Fatalf("expected preemption after override expiry, got %+v", report)
	}
	if _, ok := h.holdingFor(t, "urgent"); !ok {
		t.Fatalf("expected urgent game allocated")
	}
}

func TestNewAllocationsSkipOverriddenDisplays(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "CBS")
	h := newHarness(t, harnessOpts{
		sources:  []sources.InputSource{testutil.SampleSource("box-1", 1, "CBS")},
		displays: []displays.Display{{ID: "tv-1"}, {ID: "tv-2"}},
	}, g)
	if _, err := h.overrides.Set(context.Background(), "tv-1", h.now.Add(10*time.Minute), "manager"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	h.tick(t)
	a, ok := h.holdingFor(t, "g1")
	if !ok || len(a.Displays) != 1 || a.Displays[0] != "tv-2" {
		t.Fatalf("expected allocation on tv-2 only, got %+v", a)
	}
}

func TestTickRollsBackFailedTune(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "ESPN")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "ESPN")},
	}, g)
	h.tuner.Fail = map[string]bool{"box-1": true}

	report := h.tick(t)
	if report.RolledBack != 1 || report.Errors != 1 || len(report.Unallocated) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(h.holding(t)) != 0 {
		t.Fatalf("expected no holding allocations after rollback")
	}
	if _, held, _ := h.registry.HolderOf("box-1"); held {
		t.Fatalf("expected source freed after rollback")
	}
	if got := h.recorder.TuneAttempts("error"); got != 1 {
		t.Fatalf("expected failed tune recorded, got %d", got)
	}

	h.tuner.Fail = nil
	report = h.tick(t)
	if report.Activated != 1 {
		t.Fatalf("expected retry to succeed next tick, got %+v", report)
	}
}

func TestTuneFailureDoesNotAbortRemainingGames(t *testing.T) {
	a := testutil.SampleGame("a", testutil.BaseTime, "ESPN")
	b := testutil.SampleGame("b", testutil.BaseTime.Add(time.Minute), "CBS")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("espn-box", 1, "ESPN"), testutil.SampleSource("cbs-box", 1, "CBS")},
	}, a, b)
	h.tuner.Fail = map[string]bool{"espn-box": true}

	report := h.tick(t)
	if _, ok := h.holdingFor(t, "b"); !ok {
		t.Fatalf("expected game b allocated despite game a failure")
	}
	if report.Errors != 1 {
		t.Fatalf("expected one isolated error, got %+v", report)
	}
}

func TestPendingAllocationIsConfirmedOnNextTick(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "ESPN")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "ESPN")},
	}, g)
	pending := testutil.SampleAllocation("p1", "box-1", "g1", h.now)
	pending.Status = allocations.StatusPending
	if err := h.allocs.Create(context.Background(), pending); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.registry.MarkAllocated("box-1", "g1"); err != nil {
		t.Fatalf("mark: %v", err)
	}

	report := h.tick(t)
	got, _ := h.allocs.Get(context.Background(), "p1")
	if got.Status != allocations.StatusActive || report.Activated != 1 || report.Created != 0 {
		t.Fatalf("expected pending confirmed in place, got %+v report=%+v", got, report)
	}
}

func TestPendingAllocationWaitsOutOverride(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "ESPN")
	h := newHarness(t, harnessOpts{
		sources:  []sources.InputSource{testutil.SampleSource("box-1", 1, "ESPN")},
		displays: []displays.Display{{ID: "tv-1"}},
	}, g)
	pending := testutil.SampleAllocation("p1", "box-1", "g1", h.now)
	pending.Status = allocations.StatusPending
	if err := h.allocs.Create(context.Background(), pending); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.registry.MarkAllocated("box-1", "g1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := h.overrides.Set(context.Background(), "tv-1", h.now.Add(10*time.Minute), "manager"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	report := h.tick(t)
	got, _ := h.allocs.Get(context.Background(), "p1")
	if got.Status != allocations.StatusPending || report.Activated != 0 {
		t.Fatalf("expected pending left alone under override, got %+v report=%+v", got, report)
	}
	if reqs := h.tuner.Requests(); len(reqs) != 0 {
		t.Fatalf("expected no tune while overridden, got %+v", reqs)
	}

	h.now = h.now.Add(11 * time.Minute)
	report = h.tick(t)
	got, _ = h.allocs.Get(context.Background(), "p1")
	if got.Status != allocations.StatusActive || report.Activated != 1 {
		t.Fatalf("expected confirmation once the override lapses, got %+v report=%+v", got, report)
	}
}

func TestReleasePassCompletesFinishedGames(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "FOX")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
	}, g)
	h.tick(t)
	a, _ := h.holdingFor(t, "g1")

	h.now = h.now.Add(2 * time.Hour)
	g.Status = games.StatusFinal
	h.setGames(g)

	report := h.tick(t)
	if report.Completed != 1 {
		t.Fatalf("expected completion, got %+v", report)
	}
	got, _ := h.allocs.Get(context.Background(), a.ID)
	if got.Status != allocations.StatusCompleted || got.ActuallyFreedAt == nil || !got.ActuallyFreedAt.Equal(h.now) {
		t.Fatalf("unexpected released allocation %+v", got)
	}
	if _, held, _ := h.registry.HolderOf("box-1"); held {
		t.Fatalf("expected source freed")
	}

	again := h.tick(t)
	if again.Completed != 0 || again.Errors != 0 {
		t.Fatalf("expected release to be idempotent, got %+v", again)
	}
}

func TestReleasePassCancelsPendingForCancelledGame(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "FOX")
	g.Status = games.StatusCancelled
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
	}, g)
	pending := testutil.SampleAllocation("p1", "box-1", "g1", h.now)
	pending.Status = allocations.StatusPending
	_ = h.allocs.Create(context.Background(), pending)
	_ = h.registry.MarkAllocated("box-1", "g1")

	report := h.tick(t)
	got, _ := h.allocs.Get(context.Background(), "p1")
	if got.Status != allocations.StatusCancelled || report.Cancelled != 1 {
		t.Fatalf("expected cancellation, got %+v", got)
	}
}

func TestReleasePassHonoursBufferAndDisplayFloor(t *testing.T) {
	plain := testutil.SampleGame("plain", testutil.BaseTime, "FOX")
	floor := testutil.Matchup(testutil.SampleGame("floor", testutil.BaseTime, "CBS"), "X", "Packers")
	pref := testutil.SamplePreference("Packers", 50)
	pref.MinDisplays = 1
	h := newHarness(t, harnessOpts{
		prefs:   []teams.Preference{pref},
		sources: []sources.InputSource{testutil.SampleSource("fox-box", 1, "FOX"), testutil.SampleSource("cbs-box", 1, "CBS")},
	}, plain, floor)
	h.tick(t)

	// The feed never marks plain final; floor is in overtime.
	h.now = testutil.BaseTime.Add(3*time.Hour + 20*time.Minute)
	floor.Status = games.StatusInProgress
	floor.EstimatedEnd = h.now.Add(-time.Minute)
	h.setGames(plain, floor)

	report := h.tick(t)
	if report.Completed != 1 || report.Extended != 1 {
		t.Fatalf("expected one completion and one extension, got %+v", report)
	}
	if _, ok := h.holdingFor(t, "plain"); ok {
		t.Fatalf("expected plain game released once buffer elapsed")
	}
	kept, ok := h.holdingFor(t, "floor")
	if !ok || !kept.ExpectedFreeAt.After(h.now) {
		t.Fatalf("expected floor game extended, got %+v", kept)
	}
}

func TestReleaseDeferredWhileDisplayOverridden(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "FOX")
	h := newHarness(t, harnessOpts{
		sources:  []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
		displays: []displays.Display{{ID: "tv-1"}},
	}, g)
	h.tick(t)

	_, _ = h.overrides.Set(context.Background(), "tv-1", h.now.Add(time.Hour), "manager")
	g.Status = games.StatusFinal
	h.setGames(g)

	report := h.tick(t)
	if report.Completed != 0 {
		t.Fatalf("expected release deferred, got %+v", report)
	}
	if _, ok := h.holdingFor(t, "g1"); !ok {
		t.Fatalf("expected allocation still held")
	}
}

func TestStaleGamesGetNoNewAllocationsButKeepExisting(t *testing.T) {
	running := testutil.SampleGame("running", testutil.BaseTime, "FOX")
	h := newHarness(t, harnessOpts{
		sources:    []sources.InputSource{testutil.SampleSource("fox-box", 1, "FOX"), testutil.SampleSource("cbs-box", 1, "CBS")},
		staleAfter: 30 * time.Minute,
	}, running)
	h.tick(t)

	fresh := testutil.SampleGame("new", testutil.BaseTime.Add(time.Hour), "CBS")
	h.games.UpsertGames([]games.Game{fresh}, testutil.BaseTime)
	h.now = testutil.BaseTime.Add(45 * time.Minute)

	report := h.tick(t)
	if report.Considered != 0 || report.Created != 0 || !report.StaleData {
		t.Fatalf("expected no candidates from stale data, got %+v", report)
	}
	if _, ok := h.holdingFor(t, "running"); !ok {
		t.Fatalf("expected active allocation kept while feed is stale")
	}
}

func TestSourceThatStopsServingIsReplaced(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "ESPN")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("a", 5, "ESPN"), testutil.SampleSource("b", 1, "ESPN")},
	}, g)
	h.tick(t)
	first, _ := h.holdingFor(t, "g1")
	if first.SourceID != "a" {
		t.Fatalf("expected source a, got %s", first.SourceID)
	}

	if err := h.registry.SetActive("a", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	h.tick(t)
	second, ok := h.holdingFor(t, "g1")
	if !ok || second.SourceID != "b" {
		t.Fatalf("expected game moved to source b, got %+v", second)
	}
	old, _ := h.allocs.Get(context.Background(), first.ID)
	if old.Status != allocations.StatusCompleted {
		t.Fatalf("expected old allocation completed, got %s", old.Status)
	}
}

func TestTickExclusivityAndMonotonicity(t *testing.T) {
	prefs := []teams.Preference{
		testutil.SamplePreference("T1", 95),
		testutil.SamplePreference("T2", 80),
		testutil.SamplePreference("T3", 60),
		testutil.SamplePreference("T4", 40),
		testutil.SamplePreference("T5", 20),
	}
	var list []games.Game
	for i := 1; i <= 5; i++ {
		g := testutil.SampleGame(fmt.Sprintf("g%d", i), testutil.BaseTime.Add(time.Duration(i)*time.Minute), "FOX", "FOX-ALT")
		list = append(list, testutil.Matchup(g, "Opp", fmt.Sprintf("T%d", i)))
	}
	h := newHarness(t, harnessOpts{
		prefs: prefs,
		sources: []sources.InputSource{
			testutil.SampleSource("s1", 1, "FOX"),
			testutil.SampleSource("s2", 2, "FOX-ALT"),
			testutil.SampleSource("s3", 3, "FOX", "CBS"),
		},
	}, list...)

	h.tick(t)
	h.assertExclusive(t)
	for _, id := range []string{"g1", "g2", "g3"} {
		if _, ok := h.holdingFor(t, id); !ok {
			t.Fatalf("expected %s allocated", id)
		}
	}
	for _, id := range []string{"g4", "g5"} {
		if _, ok := h.holdingFor(t, id); ok {
			t.Fatalf("expected %s unallocated", id)
		}
	}

	// A new top-priority FOX game displaces the lowest FOX holder.
	extra := testutil.Matchup(testutil.SampleGame("g0", testutil.BaseTime, "FOX"), "Opp", "T1")
	h.setGames(append(list, extra)...)
	h.now = h.now.Add(time.Minute)
	h.tick(t)
	h.assertExclusive(t)
	if _, ok := h.holdingFor(t, "g0"); !ok {
		t.Fatalf("expected g0 allocated")
	}
	if _, ok := h.holdingFor(t, "g3"); ok {
		t.Fatalf("expected g3 preempted as lowest holder")
	}
}

func TestTickSkippedWhileLeaseHeld(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	release, ok, err := h.engine.lease.TryAcquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer release()

	_, err = h.engine.Tick(context.Background())
	if !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("expected ErrTickInProgress, got %v", err)
	}
	if _, skipped, _ := h.recorder.TickStats(); skipped != 1 {
		t.Fatalf("expected skipped tick recorded, got %d", skipped)
	}
}

func TestReconcileAtStartup(t *testing.T) {
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("a", 1, "FOX"), testutil.SampleSource("b", 1, "CBS")},
	})
	ctx := context.Background()

	active := testutil.SampleAllocation("act", "a", "g1", h.now)
	pending := testutil.SampleAllocation("pen", "b", "g2", h.now)
	pending.Status = allocations.StatusPending
	orphan := testutil.SampleAllocation("orph", "gone", "g3", h.now)
	for _, a := range []allocations.Allocation{active, pending, orphan} {
		if err := h.allocs.Create(ctx, a); err != nil {
			t.Fatalf("create %s: %v", a.ID, err)
		}
	}

	report, err := h.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Restored) != 1 || len(report.Discarded) != 1 || len(report.Orphaned) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if holder, held, _ := h.registry.HolderOf("a"); !held || holder != "g1" {
		t.Fatalf("expected source a re-marked for g1")
	}
	if _, held, _ := h.registry.HolderOf("b"); held {
		t.Fatalf("expected source b free")
	}
	got, _ := h.allocs.Get(ctx, "pen")
	if got.Status != allocations.StatusCancelled {
		t.Fatalf("expected pending cancelled, got %s", got.Status)
	}
}

func TestPickDisplaysPrefersZonesAndRatesQuality(t *testing.T) {
	e := New(Config{Displays: []displays.Display{
		{ID: "bar-1", Zone: "bar"},
		{ID: "patio-1", Zone: "patio"},
		{ID: "patio-2", Zone: "patio"},
	}}, Deps{})
	pref := teams.Preference{Name: "Packers", MinDisplays: 2, PreferredZones: []string{"patio"}}
	cand := appgames.Candidate{Priority: priority.Result{Preference: &pref, MinDisplays: 2}}

	picked, q := e.pickDisplays(cand, map[string]bool{}, map[string]bool{})
	if len(picked) != 2 || picked[0] != "patio-1" || picked[1] != "patio-2" || q != allocations.QualityOptimal {
		t.Fatalf("unexpected pick %v %s", picked, q)
	}

	picked, q = e.pickDisplays(cand, map[string]bool{"patio-1": true}, map[string]bool{})
	if len(picked) != 2 || picked[0] != "patio-2" || q != allocations.QualitySuboptimal {
		t.Fatalf("expected zone fallback to be suboptimal, got %v %s", picked, q)
	}

	_, q = e.pickDisplays(cand, map[string]bool{"patio-1": true, "patio-2": true}, map[string]bool{"bar-1": true})
	if q != allocations.QualityDegraded {
		t.Fatalf("expected degraded with no free displays, got %s", q)
	}

	if got := withNetwork(allocations.QualityOptimal, "ESPN+", []string{"ESPN", "ESPN+"}); got != allocations.QualitySuboptimal {
		t.Fatalf("expected fallback network to downgrade quality, got %s", got)
	}
}

func TestStartRunsTicksAndTrigger(t *testing.T) {
	g := testutil.SampleGame("g1", testutil.BaseTime, "FOX")
	h := newHarness(t, harnessOpts{
		sources: []sources.InputSource{testutil.SampleSource("box-1", 1, "FOX")},
	}, g)
	h.engine.cfg.TickInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)
	h.engine.Trigger()
	h.engine.Trigger()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if runs, _, _ := h.recorder.TickStats(); runs >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected startup and triggered ticks")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := h.engine.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.engine.LastTick().StartedAt.IsZero() {
		t.Fatalf("expected last tick report")
	}
	if len(h.tuner.Requests()) != 1 {
		t.Fatalf("expected a single tune across ticks, got %d", len(h.tuner.Requests()))
	}
}
