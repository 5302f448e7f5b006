// Package tuner sends channel-change commands to input sources and waits for
// the hardware to confirm.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
)

// Request asks a source to show a channel on a set of displays.
type Request struct {
	SourceID   string       `json:"sourceId"`
	SourceType sources.Type `json:"sourceType"`
	Network    string       `json:"network,omitempty"`
	Channel    string       `json:"channel"`
	Displays   []string     `json:"displays"`
}

// Tuner performs one tune and returns once the source confirms.
type Tuner interface {
	Tune(ctx context.Context, req Request) error
}

// ConfirmationTimeoutError is returned when a source does not confirm in time.
type ConfirmationTimeoutError struct {
	SourceID string
	Timeout  time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("source %s did not confirm tune within %s", e.SourceID, e.Timeout)
}

// IsConfirmationTimeout reports whether err is a ConfirmationTimeoutError.
func IsConfirmationTimeout(err error) bool {
	var te *ConfirmationTimeoutError
	return errors.As(err, &te)
}

// Confirm runs t.Tune under timeout, reporting an expired deadline as a
// ConfirmationTimeoutError. Cancellation of the parent context is returned as-is.
func Confirm(ctx context.Context, t Tuner, req Request, timeout time.Duration) error {
	if timeout <= 0 {
		return t.Tune(ctx, req)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := t.Tune(tctx, req)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return &ConfirmationTimeoutError{SourceID: req.SourceID, Timeout: timeout}
	}
	return err
}

// Noop accepts every tune immediately. It backs local runs with no matrix attached.
type Noop struct {
	Logger *slog.Logger
}

func (n Noop) Tune(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.FromContext(ctx, n.Logger)
	if logger != nil {
		logger.Debug("tune accepted",
			logging.FieldSourceID, req.SourceID,
			"channel", req.Channel,
			logging.FieldCount, len(req.Displays),
		)
	}
	return nil
}
