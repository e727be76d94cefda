package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// MemoryBackend is a brute-force cosine-similarity vector store. It is the
// deterministic local fallback substituted when the configured backend is
// unavailable, and implements the same contract as HNSWBackend.
type MemoryBackend struct {
	mu         sync.RWMutex
	dimensions int

	// order preserves insertion order for deterministic tie-breaking.
	order   []string
	vectors map[string][]float32

	closed bool
}

// NewMemoryBackend creates a brute-force vector backend.
func NewMemoryBackend(cfg VectorConfig) *MemoryBackend {
	return &MemoryBackend{
		dimensions: cfg.Dimensions,
		vectors:    make(map[string][]float32),
	}
}

// Name implements VectorBackend.
func (s *MemoryBackend) Name() string { return "memory" }

// Add inserts vectors with their IDs. Existing IDs are replaced in place,
// keeping their original insertion position.
func (s *MemoryBackend) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return sferrors.MisalignedInputError(fmt.Sprintf(
			"ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sferrors.InternalError("vector backend is closed", nil)
	}

	if s.dimensions == 0 && len(vectors) > 0 {
		s.dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.dimensions {
			return dimensionMismatch(s.dimensions, len(v))
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		if _, exists := s.vectors[id]; !exists {
			s.order = append(s.order, id)
		}
		s.vectors[id] = vec
	}

	return nil
}

// Search scores every stored vector against the query and returns the top k
// by descending similarity, ties broken by insertion order.
func (s *MemoryBackend) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, sferrors.InternalError("vector backend is closed", nil)
	}
	if len(query) != s.dimensions {
		return nil, dimensionMismatch(s.dimensions, len(query))
	}
	if len(s.vectors) == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	type scored struct {
		id    string
		pos   int
		score float64
	}
	hits := make([]scored, 0, len(s.order))
	for pos, id := range s.order {
		hits = append(hits, scored{
			id:    id,
			pos:   pos,
			score: dot(normalized, s.vectors[id]),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos < hits[j].pos
	})

	if k > len(hits) {
		k = len(hits)
	}
	results := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		// Both vectors are unit length, so cosine similarity is the dot
		// product and distance is 1 - similarity.
		score := (hits[i].score + 1) / 2
		results[i] = &VectorResult{
			ID:       hits[i].id,
			Distance: float32(1 - hits[i].score),
			Score:    score,
		}
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (s *MemoryBackend) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.vectors)
}

// Close releases resources.
func (s *MemoryBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.vectors = nil
	s.order = nil
	return nil
}

var _ VectorBackend = (*MemoryBackend)(nil)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
