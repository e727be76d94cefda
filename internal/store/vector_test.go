package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// backendsUnderTest exercises both implementations against the same
// cosine-similarity contract.
func backendsUnderTest(cfg VectorConfig) map[string]VectorBackend {
	return map[string]VectorBackend{
		"hnsw":   NewHNSWBackend(cfg),
		"memory": NewMemoryBackend(cfg),
	}
}

func TestVectorBackendSearchOrdersBySimilarity(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{Dimensions: 3}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()
			ctx := context.Background()

			err := backend.Add(ctx,
				[]string{"x", "y", "diag"},
				[][]float32{
					{1, 0, 0},
					{0, 1, 0},
					{1, 1, 0},
				})
			require.NoError(t, err)
			assert.Equal(t, 3, backend.Count())

			results, err := backend.Search(ctx, []float32{1, 0.1, 0}, 3)
			require.NoError(t, err)
			require.Len(t, results, 3)

			assert.Equal(t, "x", results[0].ID)
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}
			for _, r := range results {
				assert.GreaterOrEqual(t, r.Score, 0.0)
				assert.LessOrEqual(t, r.Score, 1.0)
			}
		})
	}
}

func TestVectorBackendEmptySearch(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{Dimensions: 2}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()

			results, err := backend.Search(context.Background(), []float32{1, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestVectorBackendRejectsDimensionMismatch(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{Dimensions: 3}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()
			ctx := context.Background()

			err := backend.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
			require.Error(t, err)
			assert.Equal(t, sferrors.ErrCodeDimensionMismatch, sferrors.GetCode(err))

			require.NoError(t, backend.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}))
			_, err = backend.Search(ctx, []float32{1, 0}, 1)
			require.Error(t, err)
			assert.Equal(t, sferrors.ErrCodeDimensionMismatch, sferrors.GetCode(err))
		})
	}
}

func TestVectorBackendRejectsMisalignedBatch(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{Dimensions: 2}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()

			err := backend.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}})
			require.Error(t, err)
			assert.Equal(t, sferrors.ErrCodeMisalignedInput, sferrors.GetCode(err))
		})
	}
}

func TestVectorBackendReplacesExistingID(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{Dimensions: 2}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()
			ctx := context.Background()

			require.NoError(t, backend.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
			require.NoError(t, backend.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))
			assert.Equal(t, 1, backend.Count())

			results, err := backend.Search(ctx, []float32{0, 1}, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "a", results[0].ID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		})
	}
}

func TestVectorBackendAdoptsDimensionsFromFirstAdd(t *testing.T) {
	for name, backend := range backendsUnderTest(VectorConfig{}) {
		t.Run(name, func(t *testing.T) {
			defer backend.Close()
			ctx := context.Background()

			require.NoError(t, backend.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}))
			err := backend.Add(ctx, []string{"b"}, [][]float32{{1, 0}})
			require.Error(t, err)
			assert.Equal(t, sferrors.ErrCodeDimensionMismatch, sferrors.GetCode(err))
		})
	}
}

func TestMemoryBackendTieBreaksByInsertionOrder(t *testing.T) {
	backend := NewMemoryBackend(VectorConfig{Dimensions: 2})
	defer backend.Close()
	ctx := context.Background()

	// Same vector, identical similarity: first inserted wins.
	require.NoError(t, backend.Add(ctx,
		[]string{"b", "a"},
		[][]float32{{1, 0}, {1, 0}}))

	results, err := backend.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, "a", results[1].ID)
}

func TestOpenVectorBackend(t *testing.T) {
	cfg := VectorConfig{Dimensions: 2}

	backend, fallback := OpenVectorBackend("hnsw", cfg)
	require.NotNil(t, backend)
	assert.False(t, fallback)
	assert.Equal(t, "hnsw", backend.Name())
	backend.Close()

	backend, fallback = OpenVectorBackend("memory", cfg)
	require.NotNil(t, backend)
	assert.False(t, fallback)
	assert.Equal(t, "memory", backend.Name())
	backend.Close()

	backend, fallback = OpenVectorBackend("none", cfg)
	assert.Nil(t, backend)
	assert.False(t, fallback)

	// Unknown backend substitutes the deterministic fallback and says so.
	backend, fallback = OpenVectorBackend("qdrant", cfg)
	require.NotNil(t, backend)
	assert.True(t, fallback)
	assert.Equal(t, "memory", backend.Name())
	backend.Close()
}
