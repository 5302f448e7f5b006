// Package handlers exposes the scheduler's read views and admin actions over HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	domainconflicts "github.com/preston-bernstein/venue-scheduler/internal/domain/conflicts"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	domaingames "github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/engine"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/poller"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
)

type nowFunc func() time.Time

// GameReader serves scored games from the feed cache.
type GameReader interface {
	Games(now time.Time) []domaingames.Game
	GameByID(id string, now time.Time) (domaingames.Game, bool)
}

// SourceLister lists the input source inventory.
type SourceLister interface {
	List() []sources.InputSource
}

// AllocationReader reads allocation records.
type AllocationReader interface {
	Get(ctx context.Context, id string) (allocations.Allocation, error)
	List(ctx context.Context, filter store.Filter) ([]allocations.Allocation, error)
}

// OverrideLister lists overrides still in force.
type OverrideLister interface {
	Active(ctx context.Context) ([]displays.ManualOverride, error)
}

// ConflictDetector forecasts input shortfalls.
type ConflictDetector interface {
	Detect(ctx context.Context, lookAhead time.Duration) (domainconflicts.Report, error)
}

// TickReporter exposes the most recent tick.
type TickReporter interface {
	LastTick() engine.TickReport
}

// Deps groups the read-side collaborators of Handler. Nil fields disable
// their routes with 503.
type Deps struct {
	Games       GameReader
	Sources     SourceLister
	Allocations AllocationReader
	Overrides   OverrideLister
	Conflicts   ConflictDetector
	Ticks       TickReporter
	// LookAhead is the default conflict horizon when the query omits it.
	LookAhead time.Duration
	Status    func() poller.Status
}

// Handler wires read-only HTTP routes to the scheduler services.
type Handler struct {
	deps   Deps
	logger *slog.Logger
	now    nowFunc
}

// NewHandler constructs a Handler with defaults.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if deps.LookAhead <= 0 {
		deps.LookAhead = 4 * time.Hour
	}
	return &Handler{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := r.Context().Err(); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "shutting down", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// Ready reports readiness for traffic, driven by the feed poller's health.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
		return
	}
	status := h.deps.Status()
	if status.IsReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
		return
	}
	msg := status.LastError
	if msg == "" {
		msg = "not ready"
	}
	writeError(w, r, http.StatusServiceUnavailable, msg, h.logger)
}

// Games lists cached games with their calculated priority.
func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	if h.deps.Games == nil {
		writeError(w, r, http.StatusServiceUnavailable, "games unavailable", h.logger)
		return
	}
	list := h.deps.Games.Games(h.now())
	if r.URL.Query().Get("priority") == "true" {
		filtered := list[:0]
		for _, g := range list {
			if g.IsPriorityGame {
				filtered = append(filtered, g)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, domaingames.NewGamesResponse(list), h.logger)
}

// GameByID returns a specific game if present.
func (h *Handler) GameByID(w http.ResponseWriter, r *http.Request) {
	if h.deps.Games == nil {
		writeError(w, r, http.StatusServiceUnavailable, "games unavailable", h.logger)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid game id", h.logger)
		return
	}
	game, found := h.deps.Games.GameByID(id, h.now())
	if !found {
		writeError(w, r, http.StatusNotFound, "game not found", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, game, h.logger)
}

// Sources lists the input inventory with current allocation flags.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sources == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sources unavailable", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sources.NewSourcesResponse(h.deps.Sources.List()), h.logger)
}

// Overrides lists displays under active manual control.
func (h *Handler) Overrides(w http.ResponseWriter, r *http.Request) {
	if h.deps.Overrides == nil {
		writeError(w, r, http.StatusServiceUnavailable, "overrides unavailable", h.logger)
		return
	}
	list, err := h.deps.Overrides.Active(r.Context())
	if err != nil {
		logging.Error(loggerFromContext(r, h.logger), "list overrides failed", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list overrides", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, displays.NewOverridesResponse(list), h.logger)
}

// LastTick returns the report from the most recent engine tick.
func (h *Handler) LastTick(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ticks == nil {
		writeError(w, r, http.StatusServiceUnavailable, "engine unavailable", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Ticks.LastTick(), h.logger)
}

// pathID reads and validates the {id} route parameter.
func pathID(r *http.Request) (string, bool) {
	return cleanParam(chi.URLParam(r, "id"))
}

func cleanParam(raw string) (string, bool) {
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" || strings.ContainsAny(id, " \t/") {
		return "", false
	}
	return id, true
}

// NotFound answers unknown routes with the JSON error shape.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not found", h.logger)
}

// MethodNotAllowed answers known routes hit with the wrong verb.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", h.logger)
}
