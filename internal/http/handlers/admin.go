package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	"github.com/preston-bernstein/venue-scheduler/internal/engine"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/overrides"
)

const (
	maxOverrideMinutes = 24 * 60
	maxAdminBodyBytes  = 1 << 16
)

// TickRunner runs synchronous ticks and accepts async tick requests.
type TickRunner interface {
	Tick(ctx context.Context) (engine.TickReport, error)
	Trigger()
}

// OverrideWriter records and clears operator overrides.
type OverrideWriter interface {
	Set(ctx context.Context, displayID string, until time.Time, by string) (displays.ManualOverride, error)
	Clear(ctx context.Context, displayID string) error
}

// AdminHandler exposes operator-only endpoints. Authentication is applied by
// the router.
type AdminHandler struct {
	engine    TickRunner
	overrides OverrideWriter
	displays  map[string]displays.Display
	logger    *slog.Logger
	now       nowFunc
}

// NewAdminHandler constructs an AdminHandler. known lists the displays an
// override may target.
func NewAdminHandler(runner TickRunner, writer OverrideWriter, known []displays.Display, logger *slog.Logger) *AdminHandler {
	byID := make(map[string]displays.Display, len(known))
	for _, d := range known {
		byID[d.ID] = d
	}
	return &AdminHandler{
		engine:    runner,
		overrides: writer,
		displays:  byID,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile runs one tick synchronously and returns its report.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, r, http.StatusServiceUnavailable, "engine not configured", h.logger)
		return
	}
	logger := loggerFromContext(r, h.logger)
	report, err := h.engine.Tick(r.Context())
	switch {
	case errors.Is(err, engine.ErrTickInProgress):
		logging.Warn(logger, "admin reconcile skipped: tick in progress")
		writeError(w, r, http.StatusConflict, "tick already in progress", h.logger)
		return
	case err != nil:
		logging.Error(logger, "admin reconcile failed", err)
		writeError(w, r, http.StatusInternalServerError, "reconcile failed", h.logger)
		return
	}
	logging.Info(logger, "admin reconcile complete",
		"created", report.Created,
		"preempted", report.Preempted,
		"unallocated", len(report.Unallocated),
	)
	writeJSON(w, http.StatusOK, report, h.logger)
}

type overrideRequest struct {
	Minutes   int    `json:"minutes"`
	ChangedBy string `json:"changedBy"`
}

// SetOverride takes manual control of a display for the requested minutes.
func (h *AdminHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	if h.overrides == nil {
		writeError(w, r, http.StatusServiceUnavailable, "overrides not configured", h.logger)
		return
	}
	displayID, ok := h.displayParam(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if req.Minutes < 1 || req.Minutes > maxOverrideMinutes {
		writeError(w, r, http.StatusBadRequest, "minutes must be between 1 and 1440", h.logger)
		return
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		writeError(w, r, http.StatusBadRequest, "changedBy is required", h.logger)
		return
	}

	logger := loggerFromContext(r, h.logger)
	until := h.now().Add(time.Duration(req.Minutes) * time.Minute)
	override, err := h.overrides.Set(r.Context(), displayID, until, changedBy)
	switch {
	case errors.Is(err, overrides.ErrInvalidOverride):
		writeError(w, r, http.StatusBadRequest, err.Error(), h.logger)
		return
	case err != nil:
		logging.Error(logger, "set override failed", err, logging.FieldDisplayID, displayID)
		writeError(w, r, http.StatusInternalServerError, "failed to set override", h.logger)
		return
	}
	logging.Info(logger, "display override set",
		logging.FieldDisplayID, displayID,
		"until", until,
		"changed_by", changedBy,
	)
	writeJSON(w, http.StatusOK, override, h.logger)
}

// ClearOverride hands a display back to the scheduler and requests a tick.
func (h *AdminHandler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	if h.overrides == nil {
		writeError(w, r, http.StatusServiceUnavailable, "overrides not configured", h.logger)
		return
	}
	displayID, ok := h.displayParam(w, r)
	if !ok {
		return
	}
	logger := loggerFromContext(r, h.logger)
	if err := h.overrides.Clear(r.Context(), displayID); err != nil {
		logging.Error(logger, "clear override failed", err, logging.FieldDisplayID, displayID)
		writeError(w, r, http.StatusInternalServerError, "failed to clear override", h.logger)
		return
	}
	logging.Info(logger, "display override cleared", logging.FieldDisplayID, displayID)
	if h.engine != nil {
		h.engine.Trigger()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) displayParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := cleanParam(chi.URLParam(r, "displayId"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid display id", h.logger)
		return "", false
	}
	if _, known := h.displays[id]; !known {
		writeError(w, r, http.StatusNotFound, "display not found", h.logger)
		return "", false
	}
	return id, true
}
