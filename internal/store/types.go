// Package store holds the chunk model and the two index primitives the
// engine ranks with: a BM25 lexical index and a cosine-similarity vector
// backend. Both are rebuilt wholesale on reindex; neither mutates in place.
package store

import (
	"context"
)

// Chunk is one unit of indexed text. Immutable once created; a reindex
// replaces the whole set, it never mutates chunks in place.
type Chunk struct {
	// ID is unique and stable across reindexing runs for the same
	// source content-offset.
	ID string `json:"id"`

	// Ordinal is the chunk's position in the corpus, used for
	// deterministic tie-breaking.
	Ordinal int `json:"ordinal"`

	// Text is the chunk content. Never empty.
	Text string `json:"text"`

	// Size is the content length in characters.
	Size int `json:"size"`

	// ParentID links a fine-grained chunk to its enclosing coarse block
	// for small-to-big expansion. Empty when chunk and block coincide.
	ParentID string `json:"parent_id,omitempty"`
}

// Source identifies which index produced a candidate.
type Source string

const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
)

// ScoredCandidate is one ranked hit from a single index.
// Transient, produced per query, never persisted.
type ScoredCandidate struct {
	ChunkID  string
	RawScore float64
	// Rank is 1-based within the producing index's result list.
	Rank   int
	Source Source
}

// VectorResult is one nearest-neighbor hit from a vector backend.
type VectorResult struct {
	ID       string
	Distance float32
	// Score is a similarity in [0, 1], higher is better.
	Score float64
}

// VectorBackend is the capability set every vector index implements.
// Backends are polymorphic: a real ANN graph and a brute-force in-memory
// fallback satisfy the same cosine-similarity contract.
type VectorBackend interface {
	// Add inserts vectors with their chunk IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector,
	// ordered by descending similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Count returns the number of stored vectors.
	Count() int

	// Name identifies the backend in diagnostics.
	Name() string

	// Close releases backend resources.
	Close() error
}

// NormalizeScores divides every score by the maximum, mapping the best hit
// to 1.0. Used when reporting raw BM25 scores in the per-source breakdown.
func NormalizeScores(candidates []ScoredCandidate) []ScoredCandidate {
	if len(candidates) == 0 {
		return candidates
	}
	max := candidates[0].RawScore
	for _, c := range candidates[1:] {
		if c.RawScore > max {
			max = c.RawScore
		}
	}
	if max <= 0 {
		return candidates
	}
	out := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		c.RawScore /= max
		out[i] = c
	}
	return out
}
