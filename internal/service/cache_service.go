package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache abstracts the read-through cache used for timetable lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Del(ctx context.Context, keys ...string)
}

// RedisCache implements Cache over a Redis client. Failures degrade to cache
// misses; the database stays authoritative.
type RedisCache struct {
	client  *redis.Client
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRedisCache wires a Redis-backed cache.
func NewRedisCache(client *redis.Client, metrics *MetricsService, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, metrics: metrics, logger: logger}
}

// Get returns the cached value when present.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		if c.metrics != nil {
			c.metrics.ObserveCacheMiss()
		}
		return "", false
	}
	if c.metrics != nil {
		c.metrics.ObserveCacheHit()
	}
	return value, true
}

// Set stores a value with a TTL. Errors are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Del removes keys. Errors are logged and ignored.
func (c *RedisCache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
