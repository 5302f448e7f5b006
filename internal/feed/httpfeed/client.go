// Package httpfeed reads games from a paginated JSON schedule API.
package httpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/feed"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
)

// Config controls how the client reaches the schedule API.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxPages   int
	Logger     *slog.Logger
}

// Client fetches games from the schedule API and maps them to domain models.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
	now        func() time.Time
	maxPages   int
	logger     *slog.Logger
}

// NewClient constructs a client with the provided configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:    normalizeBaseURL(cfg.BaseURL),
		apiKey:     cfg.APIKey,
		httpClient: resolveHTTPClient(cfg.HTTPClient),
		now:        time.Now,
		maxPages:   resolveMaxPages(cfg.MaxPages),
		logger:     cfg.Logger,
	}
}

// FetchGames retrieves games overlapping [from, to), following pagination.
func (c *Client) FetchGames(ctx context.Context, from, to time.Time) ([]games.Game, error) {
	page := 1
	allGames := make([]games.Game, 0)

	for {
		req, err := c.buildRequest(ctx, from, to, page)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, &feed.RateLimitError{
				Feed:       Name,
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			}
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("schedule feed: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var payload gamesResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("schedule feed: decoding page %d: %w", page, decodeErr)
		}
		resp.Body.Close()

		for _, raw := range payload.Data {
			g, ok := mapGame(raw)
			if !ok {
				c.logDrop(ctx, raw)
				continue
			}
			allGames = append(allGames, g)
		}

		totalPages := payload.Meta.TotalPages
		if totalPages > 0 {
			if page >= totalPages {
				break
			}
		} else if len(payload.Data) < defaultPerPage {
			break
		}
		if page >= c.maxPages {
			break
		}
		page++
	}

	return allGames, nil
}

func (c *Client) buildRequest(ctx context.Context, from, to time.Time, page int) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/games", nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	q.Set("per_page", strconv.Itoa(defaultPerPage))
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) logDrop(ctx context.Context, raw gameResponse) {
	logger := logging.FromContext(ctx, c.logger)
	if logger == nil {
		return
	}
	logger.Warn("dropping malformed feed game",
		logging.FieldGameID, raw.ID,
		"start_time", raw.StartTime,
		logging.FieldFeed, Name,
	)
}
