package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/preston-bernstein/venue-scheduler/internal/logging"
)

const (
	defaultKey = "venue-scheduler:tick"
	defaultTTL = 2 * time.Minute
	// releaseTimeout bounds the release call, which runs after the tick context may be gone.
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// Redis is a cross-replica lease held as a SET NX PX key with a random token.
type Redis struct {
	client goredis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis builds a Redis lease. Empty key and non-positive ttl use defaults.
// The ttl must exceed the longest tick, since the key is not renewed.
func NewRedis(client goredis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *Redis {
	if key == "" {
		key = defaultKey
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

func (r *Redis) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring tick lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{r.key}, token).Err(); err != nil {
			logging.Warn(r.logger, "tick lease release failed", logging.FieldError, err)
		}
	}
	return release, true, nil
}
