package tuner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/preston-bernstein/venue-scheduler/internal/logging"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	defaultRetries     = 2
	defaultRetryDelay  = 100 * time.Millisecond
	maxRetryDelay      = time.Second
)

// HTTPConfig controls how HTTPTuner reaches the matrix controller.
type HTTPConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// HTTPTuner posts tune commands to a matrix controller. The controller
// answers only after the source has locked the channel.
type HTTPTuner struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
	policy  retrypolicy.RetryPolicy[*http.Response]
}

// StatusError is a non-success controller response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tuner: unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewHTTP builds an HTTPTuner, defaulting the client timeout and retry policy.
//
//nolint:bodyclose // the policy's type parameter is a response, not an open body
func NewHTTP(cfg HTTPConfig) *HTTPTuner {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultRetries
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	ceiling := maxRetryDelay
	if delay >= ceiling {
		ceiling = 2 * delay
	}

	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(delay, ceiling).
		WithMaxRetries(retries).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !isContextErr(err)
			}
			return resp != nil && resp.StatusCode >= http.StatusInternalServerError
		}).
		Build()

	return &HTTPTuner{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
		logger:  cfg.Logger,
		policy:  policy,
	}
}

// Tune posts the request to /sources/{id}/tune and waits for a 2xx.
func (h *HTTPTuner) Tune(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("tuner: encoding request: %w", err)
	}
	endpoint := h.baseURL + "/sources/" + url.PathEscape(req.SourceID) + "/tune"

	attempt := 0
	resp, err := failsafe.With(h.policy).WithContext(ctx).Get(func() (*http.Response, error) {
		attempt++
		if attempt > 1 {
			h.logRetry(ctx, req.SourceID, attempt)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if h.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+h.token)
		}
		resp, err := h.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			// drain so the connection can be reused across retries
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
			resp.Body.Close()
		}
		return resp, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("tuner: source %s: %w", req.SourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}

func (h *HTTPTuner) logRetry(ctx context.Context, sourceID string, attempt int) {
	logger := logging.FromContext(ctx, h.logger)
	if logger != nil {
		logger.Warn("tune retry", logging.FieldSourceID, sourceID, logging.FieldAttempt, attempt)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
