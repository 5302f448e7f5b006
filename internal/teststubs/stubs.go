package teststubs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	domaingames "github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/tuner"
)

// StubFeed is a test double for feed.GameFeed.
type StubFeed struct {
	mu     sync.Mutex
	games  []domaingames.Game
	Err    error
	Calls  atomic.Int32
	Notify chan struct{}
}

// NewStubFeed returns a feed serving list.
func NewStubFeed(list ...domaingames.Game) *StubFeed {
	return &StubFeed{games: list}
}

// SetGames replaces the games returned by later calls.
func (s *StubFeed) SetGames(list ...domaingames.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = list
}

// FetchGames returns configured games and error while tracking calls.
func (s *StubFeed) FetchGames(ctx context.Context, from, to time.Time) ([]domaingames.Game, error) {
	_ = ctx
	_ = from
	_ = to
	if s.Notify != nil {
		select {
		case <-s.Notify:
		default:
			close(s.Notify)
		}
	}
	s.Calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domaingames.Game(nil), s.games...), s.Err
}

// StubTuner is a test double for tuner.Tuner. Sources listed in Fail return FailErr.
type StubTuner struct {
	mu       sync.Mutex
	Fail     map[string]bool
	FailErr  error
	requests []tuner.Request
}

// Tune records the request and fails for configured sources.
func (s *StubTuner) Tune(ctx context.Context, req tuner.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Fail[req.SourceID] {
		if s.FailErr != nil {
			return s.FailErr
		}
		return &tuner.ConfirmationTimeoutError{SourceID: req.SourceID, Timeout: time.Second}
	}
	return nil
}

// Requests returns a copy of every tune request seen.
func (s *StubTuner) Requests() []tuner.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tuner.Request(nil), s.requests...)
}
