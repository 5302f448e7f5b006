// Package server wires the scheduler's components and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	appgames "github.com/preston-bernstein/venue-scheduler/internal/app/games"
	"github.com/preston-bernstein/venue-scheduler/internal/config"
	"github.com/preston-bernstein/venue-scheduler/internal/conflicts"
	"github.com/preston-bernstein/venue-scheduler/internal/engine"
	httpserver "github.com/preston-bernstein/venue-scheduler/internal/http"
	"github.com/preston-bernstein/venue-scheduler/internal/http/handlers"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/overrides"
	"github.com/preston-bernstein/venue-scheduler/internal/poller"
	"github.com/preston-bernstein/venue-scheduler/internal/priority"
	"github.com/preston-bernstein/venue-scheduler/internal/registry"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
)

var metricsSetup = metrics.Setup

// Server owns every long-running component of the scheduler.
type Server struct {
	cfg           config.Config
	logger        *slog.Logger
	metrics       *metrics.Recorder
	engine        Scheduler
	poller        Poller
	httpServer    httpServer
	metricsServer httpServer
	metricsStop   func(context.Context) error
	closers       []closer
}

// New builds a server for venue from cfg.
func New(cfg config.Config, venue config.Venue, logger *slog.Logger) (*Server, error) {
	return newServerWithMetrics(cfg, venue, logger, nil)
}

func newServerWithMetrics(cfg config.Config, venue config.Venue, logger *slog.Logger, recorder *metrics.Recorder) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(logging.Config{})
	}
	recorder, metricsSrv, metricsShutdown := buildMetrics(cfg, logger, recorder)

	backends, err := buildStorage(cfg.Store)
	if err != nil {
		return nil, err
	}
	tickLease, leaseClose := buildLease(cfg.Lease, logger)

	prioCfg := cfg.Priority
	prioCfg.PremiumNetworks = append(append([]string(nil), prioCfg.PremiumNetworks...), venue.PremiumNetworks...)
	gameSvc := appgames.NewService(store.NewGameStore(), priority.NewCalculator(prioCfg), venue.Teams, cfg.Scheduler.StaleAfter)
	inventory := registry.New(venue.Sources)
	overrideSvc := overrides.NewService(backends.overrides, nil)

	eng := engine.New(engine.Config{
		TickInterval:  cfg.Scheduler.TickInterval,
		LookAhead:     cfg.Scheduler.LookAhead,
		ReleaseBuffer: cfg.Scheduler.ReleaseBuffer,
		TuneTimeout:   cfg.Scheduler.TuneTimeout,
		Displays:      venue.Displays,
	}, engine.Deps{
		Games:     gameSvc,
		Registry:  inventory,
		Store:     backends.allocations,
		Overrides: overrideSvc,
		Tuner:     buildTuner(cfg.Tuner, logger),
		Lease:     tickLease,
		Logger:    logger,
		Metrics:   recorder,
	})

	gameFeed := newFeedFactory(logger, recorder).build(cfg.Feed)
	plr := poller.New(gameFeed, gameSvc, logger, recorder, cfg.Feed.PollInterval, cfg.Scheduler.LookAhead)
	plr.OnLive(eng.OnGamesLive)

	detector := conflicts.NewDetector(gameSvc, inventory, backends.allocations, logger, recorder)
	handler := handlers.NewHandler(handlers.Deps{
		Games:       gameSvc,
		Sources:     inventory,
		Allocations: backends.allocations,
		Overrides:   overrideSvc,
		Conflicts:   detector,
		Ticks:       eng,
		LookAhead:   cfg.Scheduler.LookAhead,
		Status:      plr.Status,
	}, logger)
	admin := handlers.NewAdminHandler(eng, overrideSvc, venue.Displays, logger)
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Handler:    handler,
		Admin:      admin,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Metrics:    recorder,
	})

	var closers []closer
	for _, c := range []closer{leaseClose, backends.close} {
		if c != nil {
			closers = append(closers, c)
		}
	}

	logging.Info(logger, "scheduler wired",
		"venue", venue.Name,
		"sources", len(venue.Sources),
		"displays", len(venue.Displays),
		"store", cfg.Store.Driver,
		"lease", cfg.Lease.Driver,
		"feed", cfg.Feed.Provider,
	)

	return &Server{
		cfg:           cfg,
		logger:        logger,
		metrics:       recorder,
		engine:        eng,
		poller:        plr,
		httpServer:    newNetHTTPServer(":"+cfg.Port, router),
		metricsServer: metricsSrv,
		metricsStop:   metricsShutdown,
		closers:       closers,
	}, nil
}

// newServerWithDeps is used for testing to inject custom components.
func newServerWithDeps(cfg config.Config, logger *slog.Logger, sched Scheduler, plr Poller, httpSrv httpServer) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger,
		engine:     sched,
		poller:     plr,
		httpServer: httpSrv,
	}
}

// Run reconciles persisted allocations, warms the game cache, starts the
// poller, engine, and servers, then blocks until ctx ends or a server fails.
func (s *Server) Run(ctx context.Context) error {
	report, err := s.engine.Reconcile(ctx)
	if err != nil {
		logging.Warn(s.logger, "startup reconciliation failed", logging.FieldError, err)
	} else {
		logging.Info(s.logger, "startup reconciliation complete",
			"discarded", len(report.Discarded),
			"restored", len(report.Restored),
			"orphaned", len(report.Orphaned),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve("http", s.httpServer, s.logger) })
	if s.metricsServer != nil {
		g.Go(func() error { return serve("metrics", s.metricsServer, s.logger) })
	}

	s.poller.Refresh(gctx)
	s.engine.Start(gctx)
	s.poller.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		logging.Info(s.logger, "shutdown signal received")
		s.gracefulShutdown()
		return nil
	})
	return g.Wait()
}

func (s *Server) gracefulShutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.engine.Stop(shutdownCtx); err != nil {
		logging.Warn(s.logger, "engine stop timed out", logging.FieldError, err)
	}
	if err := s.poller.Stop(shutdownCtx); err != nil {
		logging.Error(s.logger, "failed to stop poller", err)
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error(s.logger, "graceful shutdown failed", err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn(s.logger, "metrics server shutdown failed", logging.FieldError, err)
		}
	}
	if s.metricsStop != nil {
		if err := s.metricsStop(shutdownCtx); err != nil {
			logging.Warn(s.logger, "metrics shutdown failed", logging.FieldError, err)
		}
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			logging.Warn(s.logger, "close failed", logging.FieldError, err)
		}
	}
	logging.Info(s.logger, "shutdown complete")
}

func buildMetrics(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*metrics.Recorder, httpServer, func(context.Context) error) {
	if recorder != nil {
		return recorder, nil, nil
	}

	recCfg := metrics.TelemetryConfig{
		Enabled:      cfg.Metrics.Enabled,
		Port:         cfg.Metrics.Port,
		ServiceName:  cfg.Metrics.ServiceName,
		OtlpEndpoint: cfg.Metrics.OtlpEndpoint,
		OtlpInsecure: cfg.Metrics.OtlpInsecure,
	}

	rec, handler, shutdown, err := metricsSetup(context.Background(), recCfg)
	if err != nil {
		logging.Warn(logger, "metrics setup failed, continuing without telemetry", logging.FieldError, err)
		return metrics.NewRecorder(), nil, nil
	}

	var metricsSrv httpServer
	if handler != nil && recCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		metricsSrv = newNetHTTPServer(":"+recCfg.Port, mux)
	}
	return rec, metricsSrv, shutdown
}

// serve runs srv until it is shut down. A clean shutdown is not an error.
func serve(name string, srv httpServer, logger *slog.Logger) error {
	logging.Info(logger, "starting "+name+" server", slog.String("addr", srv.Addr()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(logger, name+" server failed", err)
		return err
	}
	return nil
}

// Handler exposes the HTTP handler (useful for tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler()
}
