// Package cache provides a Redis-backed read cache with tag-based
// invalidation. Reads register themselves under one or more tags; writes
// invalidate tags, which drops every cached entry registered under them.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	entryPrefix = "cache:"
	tagPrefix   = "cachetag:"

	// DefaultTTL bounds staleness even if an invalidation is lost.
	DefaultTTL = 5 * time.Minute
)

// TagCache caches JSON-encoded values in Redis, indexed by invalidation tags.
// The cache is best-effort: any Redis failure falls through to the loader so a
// cold or broken cache never produces a wrong answer.
type TagCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a TagCache. ttl <= 0 uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TagCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagCache{client: client, ttl: ttl, logger: logger}
}

// GetOrLoad returns the cached value for key, or runs load and caches its
// result under the given tags. Loader errors are returned as-is and nothing
// is cached for them.
func GetOrLoad[T any](ctx context.Context, c *TagCache, key string, tags []string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c != nil {
		raw, err := c.client.Get(ctx, entryPrefix+key).Bytes()
		if err == nil {
			var v T
			if uerr := json.Unmarshal(raw, &v); uerr == nil {
				return v, nil
			}
			// Undecodable entry: drop it and reload.
			c.client.Del(ctx, entryPrefix+key)
		} else if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err := load(ctx)
	if err != nil {
		return zero, err
	}
	if c != nil {
		c.store(ctx, key, tags, v)
	}
	return v, nil
}

func (c *TagCache) store(ctx context.Context, key string, tags []string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, entryPrefix+key, raw, c.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagPrefix+tag, entryPrefix+key)
		// Tag sets outlive their newest entry slightly so invalidation
		// still finds entries right up to expiry.
		pipe.Expire(ctx, tagPrefix+tag, c.ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached entry registered under any of the given tags.
// Invalidating a tag with no entries is a no-op, never an error.
func (c *TagCache) Invalidate(ctx context.Context, tags ...string) error {
	if c == nil || len(tags) == 0 {
		return nil
	}
	for _, tag := range tags {
		keys, err := c.client.SMembers(ctx, tagPrefix+tag).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if err := c.client.Del(ctx, tagPrefix+tag).Err(); err != nil {
			return err
		}
	}
	return nil
}
