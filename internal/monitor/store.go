package monitor

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultStatusTTL is how long a status result is served without refetching.
	DefaultStatusTTL = 3 * time.Hour
	// DefaultStatusCacheSize bounds the number of accounts kept in memory.
	DefaultStatusCacheSize = 1024
)

// StatusCache stores status results keyed by normalized account.
// Implementations can be in-memory or remote.
type StatusCache interface {
	// Get returns the entry for key and whether it is still within the TTL.
	// ok is false when nothing is stored.
	Get(ctx context.Context, key string) (entry CacheEntry, fresh bool, ok bool)
	// Put replaces the entry for key, stamping it with the current time.
	Put(ctx context.Context, key string, value StatusResult) error
	// Len returns the number of stored entries.
	Len() int
}

// MemoryStatusCache is a process-local StatusCache. Stale entries are not
// purged; they read as not fresh until overwritten. Size is bounded by
// least-recently-used eviction.
type MemoryStatusCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, CacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStatusCache returns a cache with the given TTL and capacity.
// Non-positive values take the defaults; now may be nil to use time.Now.
func NewMemoryStatusCache(ttl time.Duration, size int, now func() time.Time) *MemoryStatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if size <= 0 {
		size = DefaultStatusCacheSize
	}
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[string, CacheEntry](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &MemoryStatusCache{entries: entries, ttl: ttl, now: now}
}

// Get implements StatusCache.Get.
func (c *MemoryStatusCache) Get(_ context.Context, key string) (CacheEntry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return CacheEntry{}, false, false
	}
	return e, c.now().Sub(e.FetchedAt) < c.ttl, true
}

// Put implements StatusCache.Put.
func (c *MemoryStatusCache) Put(_ context.Context, key string, value StatusResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	value.FetchedAt = now
	c.entries.Add(key, CacheEntry{Value: value, FetchedAt: now})
	return nil
}

// Len implements StatusCache.Len.
func (c *MemoryStatusCache) Len() int {
	return c.entries.Len()
}
