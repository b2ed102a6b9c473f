package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "livewatch:status:"

// RedisStatusCache keeps status results in Redis so they survive restarts
// and are shared between instances. Entries expire in Redis after the TTL.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// NewRedisStatusCache returns a cache backed by client.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisStatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisStatusCache{client: client, ttl: ttl, log: log, now: time.Now}
}

// Key returns the Redis key for a normalized account.
func (c *RedisStatusCache) Key(account string) string {
	return redisKeyPrefix + account
}

// Get implements StatusCache.Get. Redis errors read as a miss.
func (c *RedisStatusCache) Get(ctx context.Context, key string) (CacheEntry, bool, bool) {
	raw, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("status cache read failed", slog.String("account", key), slog.String("error", err.Error()))
		}
		return CacheEntry{}, false, false
	}
	var e CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("status cache entry corrupt", slog.String("account", key), slog.String("error", err.Error()))
		return CacheEntry{}, false, false
	}
	return e, c.now().Sub(e.FetchedAt) < c.ttl, true
}

// Put implements StatusCache.Put.
func (c *RedisStatusCache) Put(ctx context.Context, key string, value StatusResult) error {
	now := c.now()
	value.FetchedAt = now
	raw, err := json.Marshal(CacheEntry{Value: value, FetchedAt: now})
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store status entry: %w", err)
	}
	return nil
}

// Len implements StatusCache.Len by counting keys under the cache prefix.
func (c *RedisStatusCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("status cache scan failed", slog.String("error", err.Error()))
	}
	return n
}
