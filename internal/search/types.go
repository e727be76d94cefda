// Package search combines the lexical and vector rankings into one ordered
// result list: weighted reciprocal-rank fusion, a small-to-big reranker, a
// response cache, and the engine that orchestrates a retrieve call end to
// end against an atomically swapped index generation.
package search

import (
	"time"
)

// Weights holds the per-source fusion weights.
type Weights struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// FusedCandidate is one chunk after rank fusion, carrying the contributing
// ranks for explainability. A zero rank means the chunk was absent from
// that source's ranking.
type FusedCandidate struct {
	ChunkID    string
	FusedScore float64

	LexicalRank  int
	LexicalScore float64
	VectorRank   int
	VectorScore  float64

	// InBoth marks candidates present in both rankings; they win ties.
	InBoth bool
}

// SourceBreakdown explains where a result's score came from.
// Lexical scores are max-normalized so the best lexical hit reads 1.0.
type SourceBreakdown struct {
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorRank   int     `json:"vector_rank,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	RerankScore  float64 `json:"rerank_score,omitempty"`
}

// Result is one entry of the ordered list a retrieve call returns.
type Result struct {
	ChunkID string `json:"chunk_id"`
	// ContextText is the parent block text when small-to-big expansion
	// applied, otherwise the chunk's own text.
	ContextText     string          `json:"context_text"`
	FusedScore      float64         `json:"fused_score"`
	SourceBreakdown SourceBreakdown `json:"source_breakdown"`
}

// StageTimings records elapsed time per retrieve stage.
type StageTimings struct {
	Rewrite time.Duration `json:"rewrite"`
	Lexical time.Duration `json:"lexical"`
	Vector  time.Duration `json:"vector"`
	Fusion  time.Duration `json:"fusion"`
	Rerank  time.Duration `json:"rerank"`
	Total   time.Duration `json:"total"`
}

// Diagnostics reports what actually served a query: the backends in use,
// any fallback substitutions, cache behavior per stage, and timings.
// Fallbacks appear here and only here; they are never errors.
type Diagnostics struct {
	Generation        string       `json:"generation"`
	VectorBackend     string       `json:"vector_backend"`
	VectorFallback    bool         `json:"vector_fallback,omitempty"`
	EmbeddingProvider string       `json:"embedding_provider"`
	EmbedderFallback  bool         `json:"embedder_fallback,omitempty"`
	CacheDowngraded   bool         `json:"cache_downgraded,omitempty"`
	ResponseCacheHit  bool         `json:"response_cache_hit"`
	Rewritten         bool         `json:"rewritten"`
	RewrittenQuery    string       `json:"rewritten_query,omitempty"`
	VectorDegraded    bool         `json:"vector_degraded,omitempty"`
	Timings           StageTimings `json:"timings"`
}

// RetrieveOptions are the per-call knobs of the query interface. Zero
// values fall back to the engine's configured defaults.
type RetrieveOptions struct {
	TopK    int
	Weights *Weights
	KRRF    int
}
