package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured.
const DefaultMaxEntries = 1024

type memoryEntry struct {
	value []byte
	// expiresAt is zero for entries that never expire.
	expiresAt time.Time
}

// MemoryCache is an in-process LRU cache with per-entry TTL.
// Expired entries are dropped lazily on read.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, _ := lru.New[string, memoryEntry](maxEntries)
	return &MemoryCache{
		entries: entries,
		now:     time.Now,
	}
}

// Name implements Cache.
func (c *MemoryCache) Name() string { return "memory" }

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

// InvalidateAll implements Cache.
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.entries.Purge()
	return nil
}

// Len implements Cache.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.entries.Purge()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
