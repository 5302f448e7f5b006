package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/logging"
)

const maxLookAheadHours = 168

// Conflicts forecasts input shortfalls over lookAheadHours (defaults to the
// scheduler horizon).
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Conflicts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "conflict detection unavailable", h.logger)
		return
	}
	lookAhead := h.deps.LookAhead
	if raw := strings.TrimSpace(r.URL.Query().Get("lookAheadHours")); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > maxLookAheadHours {
			writeError(w, r, http.StatusBadRequest, "invalid lookAheadHours (expected 1-168)", h.logger)
			return
		}
		lookAhead = time.Duration(hours) * time.Hour
	}

	logger := loggerFromContext(r, h.logger)
	report, err := h.deps.Conflicts.Detect(r.Context(), lookAhead)
	if err != nil {
		logging.Error(logger, "conflict detection failed", err)
		writeError(w, r, http.StatusInternalServerError, "conflict detection failed", h.logger)
		return
	}
	logging.Info(logger, "served conflicts",
		logging.FieldCount, report.TotalConflicts,
		"critical", report.CriticalConflicts,
	)
	writeJSON(w, http.StatusOK, report, h.logger)
}
