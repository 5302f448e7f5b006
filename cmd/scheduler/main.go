package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/preston-bernstein/venue-scheduler/internal/config"
	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/server"
)

const appVersion = "dev"

func main() {
	if os.Getenv("SKIP_SERVER_RUN") == "1" {
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "venue-scheduler:", err)
		os.Exit(1)
	}
}

func run() error {
	loaded, envErr := config.LoadDotEnv()

	logger := logging.NewLogger(logging.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		Service: "venue-scheduler",
		Version: appVersion,
	})
	if envErr != nil {
		logger.Warn("failed to load env file", logging.FieldError, envErr)
	} else if len(loaded) > 0 {
		logger.Info("loaded env files", "files", loaded)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	venue, err := config.LoadVenue(cfg.VenueFile)
	if err != nil {
		return fmt.Errorf("load venue: %w", err)
	}
	if err := venue.Validate(); err != nil {
		return fmt.Errorf("invalid venue: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, venue, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
