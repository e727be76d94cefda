package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/searchfuse/searchfuse/internal/cache"
)

// CachedEmbedder wraps an Embedder with a TTL cache so the same (text,
// model) pair is computed at most once. The cache backend is injected, so
// the same wrapper works over the in-memory and persistent backends.
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder creates a caching wrapper. A nil cache disables
// caching: every call goes straight to the inner embedder.
func NewCachedEmbedder(inner Embedder, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl}
}

// cacheKey hashes text and model identity together. Two models embedding
// the same text must never share an entry.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return "emb:" + hex.EncodeToString(hash[:])
}

// Embed returns the cached embedding when present, otherwise computes,
// stores, and returns it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache == nil {
		return c.inner.Embed(ctx, text)
	}

	data, hit, err := cache.GetOrCompute(ctx, c.cache, c.cacheKey(text), c.ttl, func() ([]byte, error) {
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return EncodeVector(vec), nil
	})
	if err != nil {
		return nil, err
	}

	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return DecodeVector(data)
}

// EmbedBatch checks the cache per text and batch-computes only the misses,
// preserving input order in the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cache == nil {
		return c.inner.EmbedBatch(ctx, texts)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		data, found, err := c.cache.Get(ctx, c.cacheKey(text))
		if err == nil && found {
			vec, decErr := DecodeVector(data)
			if decErr == nil {
				results[i] = vec
				c.hits.Add(1)
				continue
			}
		}
		uncachedIndices = append(uncachedIndices, i)
		uncachedTexts = append(uncachedTexts, text)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}
	c.misses.Add(int64(len(uncachedTexts)))

	computed, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = computed[j]
		// Each entry is written whole; a failed write just means a miss
		// next time.
		_ = c.cache.Put(ctx, c.cacheKey(texts[idx]), EncodeVector(computed[j]), c.ttl)
	}

	return results, nil
}

// Stats returns cumulative cache hits and misses for diagnostics.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName implements Embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Available implements Embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close implements Embedder. The cache has its own lifecycle and is not
// closed here.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

var _ Embedder = (*CachedEmbedder)(nil)
