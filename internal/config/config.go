package config

import (
	"fmt"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/priority"
)

// Config holds runtime configuration for the scheduler.
type Config struct {
	Port       string
	AdminToken string
	VenueFile  string
	Scheduler  SchedulerConfig
	Priority   priority.Config
	Feed       FeedConfig
	Store      StoreConfig
	Lease      LeaseConfig
	Tuner      TunerConfig
	Metrics    MetricsConfig
}

// SchedulerConfig controls the allocation loop and conflict horizon.
type SchedulerConfig struct {
	TickInterval  Duration
	LookAhead     Duration
	ReleaseBuffer Duration
	StaleAfter    Duration
	TuneTimeout   Duration
}

// FeedConfig selects and tunes the game feed.
type FeedConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	PollInterval Duration
	MaxAttempts  int
	RetryBackoff Duration
}

// StoreConfig selects where allocations and overrides persist.
type StoreConfig struct {
	Driver   string
	BoltPath string
}

// LeaseConfig selects the tick lease backend.
type LeaseConfig struct {
	Driver    string
	RedisAddr string
	Key       string
	TTL       Duration
}

// TunerConfig points at the display/tuning backend. An empty URL confirms
// every tune immediately.
type TunerConfig struct {
	BaseURL    string
	Token      string
	MaxRetries int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Port:       envOrDefault(envPort, defaultPort),
		AdminToken: envOrDefault(envAdminToken, ""),
		VenueFile:  envOrDefault(envVenueFile, ""),
		Scheduler:  loadScheduler(),
		Priority:   loadPriority(),
		Feed:       loadFeed(),
		Store: StoreConfig{
			Driver:   envOrDefault(envStoreDriver, defaultStoreDriver),
			BoltPath: envOrDefault(envBoltPath, defaultBoltPath),
		},
		Lease: LeaseConfig{
			Driver:    envOrDefault(envLeaseDriver, defaultLeaseDriver),
			RedisAddr: envOrDefault(envRedisAddr, defaultRedisAddr),
			Key:       envOrDefault(envLeaseKey, defaultLeaseKey),
			TTL:       durationEnvOrDefault(envLeaseTTL, defaultLeaseTTL),
		},
		Tuner: TunerConfig{
			BaseURL:    envOrDefault(envTunerURL, ""),
			Token:      envOrDefault(envTunerToken, ""),
			MaxRetries: intEnvOrDefault(envTunerRetries, defaultTunerRetries),
		},
		Metrics: loadMetrics(),
	}
}

func loadScheduler() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:  durationEnvOrDefault(envTickInterval, defaultTickInterval),
		LookAhead:     durationEnvOrDefault(envLookAhead, defaultLookAhead),
		ReleaseBuffer: durationEnvOrDefault(envReleaseBuffer, defaultReleaseBuffer),
		StaleAfter:    durationEnvOrDefault(envFeedStale, defaultFeedStale),
		TuneTimeout:   durationEnvOrDefault(envTuneTimeout, defaultTuneTimeout),
	}
}

func loadPriority() priority.Config {
	return priority.Config{
		PlayoffBoost:    floatEnvOrDefault(envPlayoffBoost, defaultPlayoffBoost),
		RivalBonus:      intEnvOrDefault(envRivalBonus, defaultRivalBonus),
		NetworkBonus:    intEnvOrDefault(envNetworkBonus, defaultNetworkBonus),
		Threshold:       intEnvOrDefault(envPriorityThreshold, defaultPriorityThreshold),
		MaxScore:        intEnvOrDefault(envPriorityMax, defaultPriorityMax),
		PremiumNetworks: listEnv(envPremiumNetworks),
	}
}

func loadFeed() FeedConfig {
	return FeedConfig{
		Provider:     envOrDefault(envFeedProvider, defaultFeedProvider),
		BaseURL:      envOrDefault(envFeedURL, ""),
		APIKey:       envOrDefault(envFeedAPIKey, ""),
		PollInterval: durationEnvOrDefault(envFeedPollInterval, defaultFeedPollInterval),
		MaxAttempts:  intEnvOrDefault(envFeedMaxAttempts, defaultFeedMaxAttempts),
		RetryBackoff: durationEnvOrDefault(envFeedBackoff, defaultFeedBackoff),
	}
}

// Validate rejects driver names the server cannot wire.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreBolt:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Lease.Driver {
	case LeaseLocal, LeaseRedis:
	default:
		return fmt.Errorf("unknown lease driver %q", c.Lease.Driver)
	}
	switch c.Feed.Provider {
	case FeedFixture:
	case FeedHTTP:
		if c.Feed.BaseURL == "" {
			return fmt.Errorf("feed provider %q requires %s", FeedHTTP, envFeedURL)
		}
	default:
		return fmt.Errorf("unknown feed provider %q", c.Feed.Provider)
	}
	if c.Scheduler.ReleaseBuffer >= c.Scheduler.LookAhead {
		return fmt.Errorf("release buffer %s must be shorter than look-ahead %s", c.Scheduler.ReleaseBuffer, c.Scheduler.LookAhead)
	}
	return nil
}

// LookAheadHours is the default horizon reported by the conflicts endpoint.
func (s SchedulerConfig) LookAheadHours() int {
	h := int(s.LookAhead / time.Hour)
	if h < 1 {
		return 1
	}
	return h
}
