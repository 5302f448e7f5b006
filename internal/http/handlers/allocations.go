package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/allocations"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
)

// Allocations lists allocation records. status takes a comma separated
// list of lifecycle states; gameId and sourceId narrow further.
func (h *Handler) Allocations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Allocations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "allocations unavailable", h.logger)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	list, err := h.deps.Allocations.List(r.Context(), filter)
	if err != nil {
		logging.Error(loggerFromContext(r, h.logger), "list allocations failed", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list allocations", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, allocations.NewAllocationsResponse(list), h.logger)
}

// AllocationByID returns one allocation record.
func (h *Handler) AllocationByID(w http.ResponseWriter, r *http.Request) {
	if h.deps.Allocations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "allocations unavailable", h.logger)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid allocation id", h.logger)
		return
	}
	alloc, err := h.deps.Allocations.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "allocation not found", h.logger)
		return
	case err != nil:
		logging.Error(loggerFromContext(r, h.logger), "get allocation failed", err,
			logging.FieldAllocationID, id,
		)
		writeError(w, r, http.StatusInternalServerError, "failed to load allocation", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, alloc, h.logger)
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{
		GameID:   strings.TrimSpace(q.Get("gameId")),
		SourceID: strings.TrimSpace(q.Get("sourceId")),
	}
	raw := strings.TrimSpace(q.Get("status"))
	if raw == "" {
		return filter, nil
	}
	for _, part := range strings.Split(raw, ",") {
		status := allocations.Status(strings.ToLower(strings.TrimSpace(part)))
		if status == "" {
			continue
		}
		if !status.Valid() {
			return store.Filter{}, errors.New("invalid status " + string(status))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}
