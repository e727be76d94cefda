package embed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchfuse/searchfuse/internal/cache"
)

// countingEmbedder wraps the static embedder and counts compute calls.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderComputesAtMostOnce(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	c := NewCachedEmbedder(inner, cache.NewMemoryCache(16), time.Hour)
	ctx := context.Background()

	first, err := c.Embed(ctx, "prazo é 30 dias")
	require.NoError(t, err)

	second, err := c.Embed(ctx, "prazo é 30 dias")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

// namedEmbedder overrides the model identity of a static embedder.
type namedEmbedder struct {
	*StaticEmbedder
	name string
}

func (n *namedEmbedder) ModelName() string { return n.name }

func TestCachedEmbedderSeparatesModels(t *testing.T) {
	// Identical text under two model identities must not share an entry.
	shared := cache.NewMemoryCache(16)
	ctx := context.Background()

	a := NewCachedEmbedder(&namedEmbedder{NewStaticEmbedder(32), "model-a"}, shared, time.Hour)
	b := NewCachedEmbedder(&namedEmbedder{NewStaticEmbedder(32), "model-b"}, shared, time.Hour)

	_, err := a.Embed(ctx, "prazo")
	require.NoError(t, err)
	_, err = b.Embed(ctx, "prazo")
	require.NoError(t, err)

	hitsB, missesB := b.Stats()
	assert.Equal(t, int64(0), hitsB)
	assert.Equal(t, int64(1), missesB)
	assert.Equal(t, 2, shared.Len())
}

func TestCachedEmbedderBatchReusesEntries(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	c := NewCachedEmbedder(inner, cache.NewMemoryCache(16), time.Hour)
	ctx := context.Background()

	_, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())

	// Only "c" is new; "a" and "b" come from the cache.
	vectors, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int64(3), inner.calls.Load())

	for _, vec := range vectors {
		assert.NotNil(t, vec)
	}
}

func TestCachedEmbedderNilCachePassesThrough(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	c := NewCachedEmbedder(inner, nil, 0)
	ctx := context.Background()

	_, err := c.Embed(ctx, "x")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedderPassthroughs(t *testing.T) {
	inner := NewStaticEmbedder(32)
	c := NewCachedEmbedder(inner, cache.NewMemoryCache(4), time.Hour)

	assert.Equal(t, 32, c.Dimensions())
	assert.Equal(t, "static-hash", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.NoError(t, c.Close())
}
