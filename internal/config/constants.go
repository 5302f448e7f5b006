package config

import "time"

const (
	envPort          = "PORT"
	envAdminToken    = "ADMIN_TOKEN"
	envVenueFile     = "VENUE_FILE"
	envTickInterval  = "TICK_INTERVAL"
	envLookAhead     = "LOOKAHEAD"
	envReleaseBuffer = "RELEASE_BUFFER"
	envFeedStale     = "FEED_STALE_AFTER"
	envTuneTimeout   = "TUNE_TIMEOUT"

	envPlayoffBoost      = "PLAYOFF_BOOST"
	envRivalBonus        = "RIVAL_BONUS"
	envNetworkBonus      = "NETWORK_BONUS"
	envPriorityThreshold = "PRIORITY_THRESHOLD"
	envPriorityMax       = "PRIORITY_MAX"
	envPremiumNetworks   = "PREMIUM_NETWORKS"

	envFeedProvider     = "FEED_PROVIDER"
	envFeedURL          = "FEED_URL"
	envFeedAPIKey       = "FEED_API_KEY"
	envFeedPollInterval = "FEED_POLL_INTERVAL"
	envFeedMaxAttempts  = "FEED_MAX_ATTEMPTS"
	envFeedBackoff      = "FEED_RETRY_BACKOFF"

	envStoreDriver = "STORE_DRIVER"
	envBoltPath    = "BOLT_PATH"

	envLeaseDriver = "LEASE_DRIVER"
	envRedisAddr   = "REDIS_ADDR"
	envLeaseKey    = "LEASE_KEY"
	envLeaseTTL    = "LEASE_TTL"

	envTunerURL     = "TUNER_URL"
	envTunerToken   = "TUNER_TOKEN"
	envTunerRetries = "TUNER_MAX_RETRIES"

	envMetricsPort  = "METRICS_PORT"
	envMetricsOn    = "METRICS_ENABLED"
	envOtelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOtelService  = "OTEL_SERVICE_NAME"
	envOtelInsecure = "OTEL_EXPORTER_OTLP_INSECURE"

	defaultPort = "4000"

	defaultTickInterval  = 45 * time.Second
	defaultLookAhead     = 4 * time.Hour
	defaultReleaseBuffer = 15 * time.Minute
	defaultFeedStale     = 30 * time.Minute
	defaultTuneTimeout   = 5 * time.Second

	defaultPlayoffBoost      = 1.5
	defaultRivalBonus        = 25
	defaultNetworkBonus      = 10
	defaultPriorityThreshold = 75
	defaultPriorityMax       = 1000

	defaultFeedProvider = "fixture"
	// Feeds rarely change faster than once a minute; polling harder only burns quota.
	defaultFeedPollInterval = time.Minute
	defaultFeedMaxAttempts  = 3
	defaultFeedBackoff      = 500 * time.Millisecond

	defaultStoreDriver = "memory"
	defaultBoltPath    = "venue-scheduler.db"

	defaultLeaseDriver = "local"
	defaultRedisAddr   = "localhost:6379"
	defaultLeaseKey    = "venue-scheduler:tick"
	defaultLeaseTTL    = 2 * time.Minute

	defaultTunerRetries = 2

	defaultMetricsPort = "9090"
	defaultServiceName = "venue-scheduler"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// Lease drivers.
const (
	LeaseLocal = "local"
	LeaseRedis = "redis"
)

// Feed providers.
const (
	FeedFixture = "fixture"
	FeedHTTP    = "http"
)
