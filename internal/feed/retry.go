package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
)

const (
	defaultRetryAttempts = 3
	defaultBackoff       = 200 * time.Millisecond
	maxBackoff           = 5 * time.Second
)

// retryingFeed wraps a GameFeed with a failsafe retry policy and per-attempt metrics.
type retryingFeed struct {
	inner       GameFeed
	name        string
	logger      *slog.Logger
	metrics     *metrics.Recorder
	maxAttempts int
	policy      retrypolicy.RetryPolicy[[]games.Game]
}

// NewRetrying wraps inner with retries. Exhausted retries surface as UnavailableError.
// If maxAttempts/backoff are <= 0, defaults are used.
func NewRetrying(inner GameFeed, name string, logger *slog.Logger, rec *metrics.Recorder, maxAttempts int, backoff time.Duration) GameFeed {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	r := &retryingFeed{
		inner:       inner,
		name:        name,
		logger:      logger,
		metrics:     rec,
		maxAttempts: maxAttempts,
	}
	ceiling := maxBackoff
	if backoff >= ceiling {
		ceiling = 2 * backoff
	}
	r.policy = retrypolicy.NewBuilder[[]games.Game]().
		WithBackoff(backoff, ceiling).
		WithMaxRetries(maxAttempts-1).
		HandleIf(func(_ []games.Game, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[[]games.Game]) {
			r.logWarn(context.Background(), "feed fetch retry",
				logging.FieldAttempt, e.Attempts(),
				"max_attempts", r.maxAttempts,
				logging.FieldError, e.LastError(),
			)
		}).
		Build()
	return r
}

func (r *retryingFeed) FetchGames(ctx context.Context, from, to time.Time) ([]games.Game, error) {
	attempts := 0
	list, err := failsafe.With(r.policy).WithContext(ctx).Get(func() ([]games.Game, error) {
		attempts++
		start := time.Now()
		list, err := r.inner.FetchGames(ctx, from, to)
		r.metrics.RecordFeedAttempt(r.name, time.Since(start), err)
		if rl, ok := AsRateLimitError(err); ok {
			r.metrics.RecordRateLimit(r.name, rl.RetryAfter)
		}
		return list, err
	})
	if err == nil {
		return list, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	r.logWarn(ctx, "feed fetch failed", "attempts", attempts, logging.FieldError, err)
	return nil, &UnavailableError{Feed: r.name, Attempts: attempts, Err: err}
}

func (r *retryingFeed) logWarn(ctx context.Context, msg string, args ...any) {
	logger := logging.FromContext(ctx, r.logger)
	if logger != nil {
		logger.Warn(msg, append(args, logging.FieldFeed, r.name)...)
	}
}
