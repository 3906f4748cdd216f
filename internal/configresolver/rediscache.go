package configresolver

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
)

// RedisCache is the Redis-backed read-through Cache, following the
// common/mredis connection wrapper and redis consumer repository pattern.
type RedisCache struct {
	client *redis.Client
	logger mlog.Logger
}

// NewRedisCache constructs a RedisCache over an already-connected client.
func NewRedisCache(client *redis.Client, logger mlog.Logger) *RedisCache {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &RedisCache{client: client, logger: logger}
}

// Get returns the cached value, or ok=false on a miss or any redis error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnf("configresolver cache get %s: %v", key, err)
		}

		return "", false
	}

	return val, true
}

// Set stores value under key with ttl. Errors are logged, not propagated — the cache is
// an optimization, never a correctness dependency.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warnf("configresolver cache set %s: %v", key, err)
	}
}

// Invalidate removes key so the next Get misses. Nothing in this repository writes
// operation configs, so no caller invokes it; cached entries otherwise expire after their TTL.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warnf("configresolver cache invalidate %s: %v", key, err)
	}
}
