package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/searchfuse/searchfuse/internal/embed"
	"github.com/searchfuse/searchfuse/internal/store"
)

const (
	// DefaultRerankTopN is how many fused candidates get re-scored.
	DefaultRerankTopN = 20

	// DefaultRerankTopM is how many re-scored candidates survive.
	DefaultRerankTopM = 8
)

// Reranker implements the small-to-big stage: re-score the top fused
// candidates against the original raw query at fine granularity, keep the
// best, then substitute each winner's parent block text as the context.
// Fine chunks find, parents explain.
type Reranker struct {
	embedder        embed.Embedder
	topN            int
	topM            int
	parentExpansion bool
}

// NewReranker creates a reranker. Non-positive topN or topM fall back to
// the defaults.
func NewReranker(embedder embed.Embedder, topN, topM int, parentExpansion bool) *Reranker {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	if topM <= 0 {
		topM = DefaultRerankTopM
	}
	if topM > topN {
		topM = topN
	}
	return &Reranker{
		embedder:        embedder,
		topN:            topN,
		topM:            topM,
		parentExpansion: parentExpansion,
	}
}

// Rerank re-scores the top-N fused candidates against rawQuery, keeps the
// top-M, expands each to its parent block, and dedupes by parent keeping
// the higher-scoring representative. lookup resolves chunk IDs; candidates
// whose chunk no longer exists are dropped.
//
// Re-scoring always uses the raw query, never a rewritten one: the rewrite
// helps recall during scoring, but relevance is judged against what the
// user actually asked.
//
// If embedding the query or the candidates fails, the fused order is kept
// as-is. A broken embedder degrades precision, it never fails the query.
func (r *Reranker) Rerank(ctx context.Context, rawQuery string, fused []FusedCandidate, lookup func(string) (store.Chunk, bool)) []Result {
	if len(fused) == 0 {
		return nil
	}

	n := r.topN
	if n > len(fused) {
		n = len(fused)
	}

	type scored struct {
		cand  FusedCandidate
		chunk store.Chunk
		score float64
	}

	candidates := make([]scored, 0, n)
	texts := make([]string, 0, n)
	for _, cand := range fused[:n] {
		chunk, ok := lookup(cand.ChunkID)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{cand: cand, chunk: chunk, score: cand.FusedScore})
		texts = append(texts, chunk.Text)
	}
	if len(candidates) == 0 {
		return nil
	}

	if rescored := r.rescore(ctx, rawQuery, texts); rescored != nil {
		for i := range candidates {
			candidates[i].score = rescored[i]
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
	}

	m := r.topM
	if m > len(candidates) {
		m = len(candidates)
	}
	candidates = candidates[:m]

	// Dedupe by parent: when two fine chunks share a block, the block
	// appears once, represented by its higher-scoring chunk. Candidates
	// arrive sorted, so the first occurrence wins.
	seen := make(map[string]bool, len(candidates))
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		contextText := c.chunk.Text
		dedupeKey := c.chunk.ID
		if r.parentExpansion && c.chunk.ParentID != "" {
			dedupeKey = c.chunk.ParentID
			if parent, ok := lookup(c.chunk.ParentID); ok {
				contextText = parent.Text
			}
		}
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		results = append(results, Result{
			ChunkID:     c.chunk.ID,
			ContextText: contextText,
			FusedScore:  c.cand.FusedScore,
			SourceBreakdown: SourceBreakdown{
				LexicalRank:  c.cand.LexicalRank,
				LexicalScore: c.cand.LexicalScore,
				VectorRank:   c.cand.VectorRank,
				VectorScore:  c.cand.VectorScore,
				RerankScore:  c.score,
			},
		})
	}

	return results
}

// rescore embeds the raw query and every candidate text, returning cosine
// similarities mapped to [0, 1]. Returns nil when embedding fails.
func (r *Reranker) rescore(ctx context.Context, rawQuery string, texts []string) []float64 {
	if r.embedder == nil {
		return nil
	}

	queryVec, err := r.embedder.Embed(ctx, rawQuery)
	if err != nil {
		slog.Warn("rerank query embedding failed, keeping fused order",
			slog.String("error", err.Error()))
		return nil
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("rerank candidate embedding failed, keeping fused order",
			slog.String("error", err.Error()))
		return nil
	}

	scores := make([]float64, len(vectors))
	for i, vec := range vectors {
		scores[i] = cosineScore(queryVec, vec)
	}
	return scores
}

// cosineScore returns (1+cos)/2 for two unit vectors, clamped to [0, 1].
func cosineScore(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := (1 + dot) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
