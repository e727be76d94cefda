package search

import (
	"sort"
	"strconv"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/store"
)

const (
	// DefaultKRRF is the reciprocal-rank fusion constant.
	DefaultKRRF = 60

	// DefaultLexicalWeight and DefaultVectorWeight favor the lexical
	// ranking, tuned on contract-style corpora where exact terms
	// (deadlines, percentages, clause numbers) carry most of the signal.
	DefaultLexicalWeight = 0.65
	DefaultVectorWeight  = 0.35

	// DefaultCandidateK is how many candidates each ranking contributes
	// to fusion.
	DefaultCandidateK = 50
)

// Fuser merges a lexical and a vector ranking with weighted reciprocal-rank
// fusion. Each chunk scores w/(k+rank) per ranking it appears in; a chunk
// absent from a ranking gets no contribution from it.
type Fuser struct {
	k       int
	weights Weights
}

// NewFuser validates the fusion parameters and returns a Fuser. Invalid
// parameters are a fatal configuration error: k must be positive, no
// weight may be negative, and at least one weight must be positive.
func NewFuser(k int, weights Weights) (*Fuser, error) {
	if k <= 0 {
		return nil, sferrors.New(sferrors.ErrCodeConfigInvalid,
			"rrf constant must be positive", nil).
			WithDetail("k_rrf", strconv.Itoa(k))
	}
	if weights.Lexical < 0 || weights.Vector < 0 {
		return nil, sferrors.New(sferrors.ErrCodeInvalidWeights,
			"fusion weights must not be negative", nil).
			WithDetail("lexical", strconv.FormatFloat(weights.Lexical, 'f', -1, 64)).
			WithDetail("vector", strconv.FormatFloat(weights.Vector, 'f', -1, 64))
	}
	if weights.Lexical == 0 && weights.Vector == 0 {
		return nil, sferrors.New(sferrors.ErrCodeInvalidWeights,
			"at least one fusion weight must be positive", nil)
	}
	return &Fuser{k: k, weights: weights}, nil
}

// DefaultFuser returns a Fuser with the default constant and weights.
func DefaultFuser() *Fuser {
	f, _ := NewFuser(DefaultKRRF, Weights{Lexical: DefaultLexicalWeight, Vector: DefaultVectorWeight})
	return f
}

// Fuse merges the two rankings into one list ordered by fused score.
// Ties are broken deterministically: chunks present in both rankings come
// first, then lower lexical rank, then lower chunk ordinal. ordinalOf maps
// a chunk ID to its corpus position; a nil ordinalOf treats every ordinal
// as equal.
func (f *Fuser) Fuse(lexical, vector []store.ScoredCandidate, ordinalOf func(string) int) []FusedCandidate {
	if len(lexical) == 0 && len(vector) == 0 {
		return nil
	}

	merged := make(map[string]*FusedCandidate, len(lexical)+len(vector))

	getOrCreate := func(chunkID string) *FusedCandidate {
		if c, ok := merged[chunkID]; ok {
			return c
		}
		c := &FusedCandidate{ChunkID: chunkID}
		merged[chunkID] = c
		return c
	}

	for _, cand := range lexical {
		c := getOrCreate(cand.ChunkID)
		c.LexicalRank = cand.Rank
		c.LexicalScore = cand.RawScore
		c.FusedScore += f.weights.Lexical / float64(f.k+cand.Rank)
	}
	for _, cand := range vector {
		c := getOrCreate(cand.ChunkID)
		c.VectorRank = cand.Rank
		c.VectorScore = cand.RawScore
		c.FusedScore += f.weights.Vector / float64(f.k+cand.Rank)
	}

	fused := make([]FusedCandidate, 0, len(merged))
	for _, c := range merged {
		c.InBoth = c.LexicalRank > 0 && c.VectorRank > 0
		fused = append(fused, *c)
	}

	sort.Slice(fused, func(i, j int) bool {
		return f.less(&fused[i], &fused[j], ordinalOf)
	})

	return fused
}

// less orders candidates: fused score descending, then in-both first, then
// lexical rank ascending (absent sorts last), then chunk ordinal ascending.
func (f *Fuser) less(a, b *FusedCandidate, ordinalOf func(string) int) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	if a.InBoth != b.InBoth {
		return a.InBoth
	}
	if a.LexicalRank != b.LexicalRank {
		return rankOrLast(a.LexicalRank) < rankOrLast(b.LexicalRank)
	}
	if ordinalOf != nil {
		return ordinalOf(a.ChunkID) < ordinalOf(b.ChunkID)
	}
	return a.ChunkID < b.ChunkID
}

// rankOrLast maps the absent-rank sentinel 0 after every real rank.
func rankOrLast(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// Weights returns the configured fusion weights.
func (f *Fuser) Weights() Weights { return f.weights }

// K returns the configured reciprocal-rank constant.
func (f *Fuser) K() int { return f.k }
