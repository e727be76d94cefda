// Package cache provides the TTL key-value cache shared by the embedding
// and response caches. Backends are polymorphic: an in-process LRU map and a
// persistent bolt store implement the same contract, selected behind one
// factory that downgrades to memory when the persistent backend fails.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is the backend-agnostic TTL cache contract.
// A ttl of zero means the entry never expires.
type Cache interface {
	// Get returns the value for key, or found=false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores a value. The write is atomic: whole entry or nothing.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// InvalidateAll drops every entry. Callers use it right after a
	// reindex when cached results may reference a dead generation.
	InvalidateAll(ctx context.Context) error

	// Len returns the number of live entries.
	Len() int

	// Name identifies the backend in diagnostics.
	Name() string

	// Close releases backend resources.
	Close() error
}

// group deduplicates concurrent computes for the same key.
var group singleflight.Group

// GetOrCompute returns the cached value for key, or computes, stores, and
// returns it. Concurrent callers for the same key share a single compute
// call. A failed compute is returned to the caller and nothing is cached.
func GetOrCompute(ctx context.Context, c Cache, key string, ttl time.Duration, compute func() ([]byte, error)) ([]byte, bool, error) {
	if value, found, err := c.Get(ctx, key); err == nil && found {
		return value, true, nil
	}

	v, err, _ := group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if value, found, err := c.Get(ctx, key); err == nil && found {
			return value, nil
		}

		value, err := compute()
		if err != nil {
			return nil, err
		}
		if putErr := c.Put(ctx, key, value, ttl); putErr != nil {
			// A failed write degrades to a miss next time; the computed
			// value is still good.
			return value, nil
		}
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}
