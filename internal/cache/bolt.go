package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

var bucketEntries = []byte("entries")

type boltEntry struct {
	Value []byte `json:"value"`
	// ExpiresAt is a Unix timestamp; zero means the entry never expires.
	ExpiresAt int64 `json:"expires_at"`
}

// BoltCache is a persistent TTL cache over a bbolt database. It survives
// process restarts, which makes it the backend of choice for embedding
// caches over large corpora.
type BoltCache struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltCache opens (or creates) the cache database at path.
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, sferrors.BackendUnavailableError("bolt", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, sferrors.BackendUnavailableError("bolt", err)
	}

	return &BoltCache{db: db, now: time.Now}, nil
}

// Name implements Cache.
func (c *BoltCache) Name() string { return "bolt" }

// Get implements Cache. Expired entries are deleted lazily.
func (c *BoltCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found, expired bool

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(key))
		if data == nil {
			return nil
		}
		var entry boltEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("corrupt cache entry %s: %w", key, err)
		}
		if entry.ExpiresAt != 0 && c.now().Unix() > entry.ExpiresAt {
			expired = true
			return nil
		}
		value = entry.Value
		found = true
		return nil
	})
	if err != nil {
		return nil, false, sferrors.InternalError("bolt cache read failed", err)
	}

	if expired {
		_ = c.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketEntries).Delete([]byte(key))
		})
	}

	return value, found, nil
}

// Put implements Cache. The bolt transaction makes the write atomic.
func (c *BoltCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := boltEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl).Unix()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return sferrors.InternalError("failed to encode cache entry", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), data)
	})
	if err != nil {
		return sferrors.InternalError("bolt cache write failed", err)
	}
	return nil
}

// InvalidateAll implements Cache by dropping and recreating the bucket.
func (c *BoltCache) InvalidateAll(ctx context.Context) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
	if err != nil {
		return sferrors.InternalError("bolt cache invalidation failed", err)
	}
	return nil
}

// Len implements Cache. Expired-but-unswept entries are counted.
func (c *BoltCache) Len() int {
	var n int
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n
}

// Close implements Cache.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*BoltCache)(nil)
