package server

import (
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/preston-bernstein/venue-scheduler/internal/config"
	"github.com/preston-bernstein/venue-scheduler/internal/feed"
	"github.com/preston-bernstein/venue-scheduler/internal/feed/fixture"
	"github.com/preston-bernstein/venue-scheduler/internal/feed/httpfeed"
	"github.com/preston-bernstein/venue-scheduler/internal/lease"
	"github.com/preston-bernstein/venue-scheduler/internal/metrics"
	"github.com/preston-bernstein/venue-scheduler/internal/overrides"
	"github.com/preston-bernstein/venue-scheduler/internal/store"
	"github.com/preston-bernstein/venue-scheduler/internal/tuner"
)

type closer func() error

// storage bundles the durable state backends.
type storage struct {
	allocations store.AllocationStore
	overrides   overrides.Store
	close       closer
}

func buildStorage(cfg config.StoreConfig) (storage, error) {
	switch cfg.Driver {
	case config.StoreBolt:
		db, err := store.OpenBolt(cfg.BoltPath)
		if err != nil {
			return storage{}, fmt.Errorf("open bolt store %s: %w", cfg.BoltPath, err)
		}
		return storage{allocations: db, overrides: db, close: db.Close}, nil
	default:
		return storage{
			allocations: store.NewMemoryAllocationStore(),
			overrides:   overrides.NewMemoryStore(),
		}, nil
	}
}

// buildLease always takes the in-process lock first so concurrent ticks in
// one replica never reach Redis.
func buildLease(cfg config.LeaseConfig, logger *slog.Logger) (lease.Lease, closer) {
	local := lease.NewLocal()
	if cfg.Driver != config.LeaseRedis {
		return local, nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	return lease.Chain{local, lease.NewRedis(client, cfg.Key, cfg.TTL, logger)}, client.Close
}

// feedFactory assembles the game feed with the shared retry wrapper.
type feedFactory struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newFeedFactory(logger *slog.Logger, recorder *metrics.Recorder) feedFactory {
	return feedFactory{logger: logger, metrics: recorder}
}

func (f feedFactory) build(cfg config.FeedConfig) feed.GameFeed {
	var base feed.GameFeed
	switch cfg.Provider {
	case config.FeedHTTP:
		base = httpfeed.NewClient(httpfeed.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Logger:  f.logger,
		})
	default:
		base = fixture.New()
	}
	return feed.NewRetrying(base, cfg.Provider, f.logger, f.metrics, cfg.MaxAttempts, cfg.RetryBackoff)
}

func buildTuner(cfg config.TunerConfig, logger *slog.Logger) tuner.Tuner {
	if cfg.BaseURL == "" {
		return tuner.Noop{Logger: logger}
	}
	return tuner.NewHTTP(tuner.HTTPConfig{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
}
