// Package http assembles the scheduler's HTTP surface.
package http

import (
	"log/slog"
	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/preston-bernstein/venue-scheduler/internal/http/handlers"
	"github.com/preston-bernstein/venue-scheduler/internal/http/middleware"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Handler    *handlers.Handler
	Admin      *handlers.AdminHandler
	AdminToken string
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// NewRouter registers the read views and the bearer-guarded admin routes.
func NewRouter(cfg RouterConfig) nethttp.Handler {
	h := cfg.Handler
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/games", h.Games)
	r.Get("/games/{id}", h.GameByID)
	r.Get("/sources", h.Sources)
	r.Get("/allocations", h.Allocations)
	r.Get("/allocations/{id}", h.AllocationByID)
	r.Get("/conflicts", h.Conflicts)
	r.Get("/overrides", h.Overrides)
	r.Get("/ticks/last", h.LastTick)

	if cfg.Admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireBearer(cfg.AdminToken, cfg.Logger))
			r.Post("/reconcile", cfg.Admin.Reconcile)
			r.Put("/overrides/{displayId}", cfg.Admin.SetOverride)
			r.Delete("/overrides/{displayId}", cfg.Admin.ClearOverride)
		})
	}
	return r
}
