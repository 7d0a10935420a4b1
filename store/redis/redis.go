/*
Package redis provides the Redis-backed fast cache (tier 1).

HOW IT WORKS:
  1. GET the key; a hit is decoded with metric.DecodeRaw (either shape)
  2. On a miss, concurrent callers for the same key join one singleflight
     call, which re-checks Redis, runs compute and SETs the result with
     the calculator's TTL
  3. Compute errors are returned to every waiter and never cached

  Redis errors other than a miss propagate. No retry happens here; retries
  belong to the client options.

  Single-flight is per process. Across replicas, the TTL bounds how often a
  key can be recomputed.
*/
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/warp/metrics-engine/metric"
)

// redisClient is the subset of *goredis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Options configures the connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache implements metric.FastCache on Redis.
type Cache struct {
	client redisClient
	prefix string
	group  singleflight.Group
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newCache(client, opts.KeyPrefix, logger), nil
}

func newCache(client redisClient, prefix string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, logger: logger}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping verifies the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Delete evicts a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// GetOrCompute implements metric.FastCache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute metric.ComputeFunc) (metric.RawMetricResult, error) {
	full := c.prefix + key
	if raw, ok, err := c.lookup(ctx, full); err != nil || ok {
		return raw, err
	}

	v, err, _ := c.group.Do(full, func() (any, error) {
		if raw, ok, err := c.lookup(ctx, full); err != nil || ok {
			return raw, err
		}

		raw, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := metric.EncodeRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("compute %s: %w", full, err)
		}
		if err := c.client.Set(ctx, full, data, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set %s: %w", full, err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	raw, ok := v.(metric.RawMetricResult)
	if !ok {
		return nil, fmt.Errorf("cache %s: %w", full, metric.ErrMalformedRaw)
	}
	return raw, nil
}

// lookup reports a hit. Undecodable entries count as a miss.
func (c *Cache) lookup(ctx context.Context, key string) (metric.RawMetricResult, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	raw, err := metric.DecodeRaw(data)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return raw, true, nil
}
