package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// VectorConfig configures a vector backend.
type VectorConfig struct {
	// Dimensions is the embedding width. Zero means adopt the width of the
	// first vector added.
	Dimensions int
	// M is the HNSW graph connectivity parameter.
	M int
	// EfSearch is the HNSW search beam width.
	EfSearch int
}

// HNSWBackend implements VectorBackend over the coder/hnsw pure-Go graph.
// Vectors are unit-normalized on insert so cosine distance is exact.
type HNSWBackend struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// String IDs map to internal uint64 keys in both directions.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// NewHNSWBackend creates an HNSW vector backend.
func NewHNSWBackend(cfg VectorConfig) *HNSWBackend {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWBackend{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Name implements VectorBackend.
func (s *HNSWBackend) Name() string { return "hnsw" }

// Add inserts vectors with their IDs. An existing ID is replaced via lazy
// deletion: the old graph node is orphaned rather than removed, because
// coder/hnsw can corrupt the graph when the last node is deleted.
func (s *HNSWBackend) Add(ctx context.Context, ids []string, vectors [][]float32) error {
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

	if s.config.Dimensions == 0 && len(vectors) > 0 {
		s.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors to the query vector.
func (s *HNSWBackend) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, sferrors.InternalError("vector backend is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, dimensionMismatch(s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// lazily deleted node
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    cosineDistanceToScore(distance),
		})
	}

	return results, nil
}

// Count returns the number of live vectors.
func (s *HNSWBackend) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Close releases resources.
func (s *HNSWBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorBackend = (*HNSWBackend)(nil)

func dimensionMismatch(expected, got int) error {
	return sferrors.New(sferrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got), nil)
}

// normalizeInPlace scales a vector to unit length.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineDistanceToScore maps cosine distance (0 identical, 2 opposite) onto
// a similarity score in [0, 1].
func cosineDistanceToScore(distance float32) float64 {
	return float64(1.0 - distance/2.0)
}
