package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/store"
)

func lexCands(ids ...string) []store.ScoredCandidate {
	out := make([]store.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = store.ScoredCandidate{
			ChunkID:  id,
			RawScore: float64(len(ids) - i),
			Rank:     i + 1,
			Source:   store.SourceLexical,
		}
	}
	return out
}

func vecCands(ids ...string) []store.ScoredCandidate {
	out := make([]store.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = store.ScoredCandidate{
			ChunkID:  id,
			RawScore: 1 - float64(i)*0.1,
			Rank:     i + 1,
			Source:   store.SourceVector,
		}
	}
	return out
}

func fusedIDs(fused []FusedCandidate) []string {
	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}
	return ids
}

func TestNewFuserRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name     string
		k        int
		weights  Weights
		wantCode string
	}{
		{"zero k", 0, Weights{Lexical: 1}, sferrors.ErrCodeConfigInvalid},
		{"negative k", -5, Weights{Lexical: 1}, sferrors.ErrCodeConfigInvalid},
		{"negative lexical weight", 60, Weights{Lexical: -0.1, Vector: 1}, sferrors.ErrCodeInvalidWeights},
		{"negative vector weight", 60, Weights{Lexical: 1, Vector: -1}, sferrors.ErrCodeInvalidWeights},
		{"both weights zero", 60, Weights{}, sferrors.ErrCodeInvalidWeights},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFuser(tt.k, tt.weights)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, sferrors.GetCode(err))
			assert.True(t, sferrors.IsFatal(err))
		})
	}
}

func TestNewFuserAcceptsSingleSourceWeights(t *testing.T) {
	for _, w := range []Weights{{Lexical: 1}, {Vector: 1}} {
		_, err := NewFuser(60, w)
		assert.NoError(t, err)
	}
}

func TestFuseWeightedContributions(t *testing.T) {
	f, err := NewFuser(60, Weights{Lexical: 0.65, Vector: 0.35})
	require.NoError(t, err)

	fused := f.Fuse(lexCands("a"), vecCands("a"), nil)
	require.Len(t, fused, 1)

	want := 0.65/61.0 + 0.35/61.0
	assert.InDelta(t, want, fused[0].FusedScore, 1e-12)
	assert.Equal(t, 1, fused[0].LexicalRank)
	assert.Equal(t, 1, fused[0].VectorRank)
	assert.True(t, fused[0].InBoth)
}

func TestFuseAbsentRankingContributesNothing(t *testing.T) {
	f, err := NewFuser(60, Weights{Lexical: 0.5, Vector: 0.5})
	require.NoError(t, err)

	fused := f.Fuse(lexCands("only-lex"), nil, nil)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.5/61.0, fused[0].FusedScore, 1e-12)
	assert.Equal(t, 0, fused[0].VectorRank)
	assert.False(t, fused[0].InBoth)
}

func TestFusePresenceInBothBeatsSingleSource(t *testing.T) {
	// Equal ranks, equal weights: the chunk both rankings agree on must
	// outscore chunks seen by only one.
	f, err := NewFuser(60, Weights{Lexical: 0.5, Vector: 0.5})
	require.NoError(t, err)

	fused := f.Fuse(lexCands("both", "lex-only"), vecCands("both", "vec-only"), nil)
	require.Len(t, fused, 3)
	assert.Equal(t, "both", fused[0].ChunkID)
	assert.Greater(t, fused[0].FusedScore, fused[1].FusedScore)
}

func TestFuseLexicalOnlyWeightsPreserveLexicalOrder(t *testing.T) {
	f, err := NewFuser(60, Weights{Lexical: 1, Vector: 0})
	require.NoError(t, err)

	// Vector ranking disagrees completely; with a zero vector weight it
	// must not move anything.
	fused := f.Fuse(lexCands("a", "b", "c"), vecCands("c", "b", "a"), nil)
	assert.Equal(t, []string{"a", "b", "c"}, fusedIDs(fused))
}

func TestFuseImprovedRankNeverLowersScore(t *testing.T) {
	f, err := NewFuser(60, Weights{Lexical: 0.65, Vector: 0.35})
	require.NoError(t, err)

	worse := f.Fuse(lexCands("x", "target"), vecCands("target"), nil)
	better := f.Fuse(lexCands("target", "x"), vecCands("target"), nil)

	scoreOf := func(fused []FusedCandidate, id string) float64 {
		for _, c := range fused {
			if c.ChunkID == id {
				return c.FusedScore
			}
		}
		t.Fatalf("chunk %s not in fused results", id)
		return 0
	}

	assert.Greater(t, scoreOf(better, "target"), scoreOf(worse, "target"))
}

func TestFuseTieBreaksInBothFirst(t *testing.T) {
	// Exact tie by construction with k=1 and equal weights:
	// "pair" at lex rank 3 + vec rank 3 scores 0.5/4 + 0.5/4 = 0.25,
	// "solo" at lex rank 1 alone scores 0.5/2 = 0.25.
	// The in-both candidate wins the tie despite its worse lexical rank.
	f, err := NewFuser(1, Weights{Lexical: 0.5, Vector: 0.5})
	require.NoError(t, err)

	lex := []store.ScoredCandidate{
		{ChunkID: "solo", RawScore: 3, Rank: 1, Source: store.SourceLexical},
		{ChunkID: "other", RawScore: 2, Rank: 2, Source: store.SourceLexical},
		{ChunkID: "pair", RawScore: 1, Rank: 3, Source: store.SourceLexical},
	}
	vec := []store.ScoredCandidate{
		{ChunkID: "v1", RawScore: 0.9, Rank: 1, Source: store.SourceVector},
		{ChunkID: "v2", RawScore: 0.8, Rank: 2, Source: store.SourceVector},
		{ChunkID: "pair", RawScore: 0.7, Rank: 3, Source: store.SourceVector},
	}

	fused := f.Fuse(lex, vec, func(string) int { return 0 })
	require.NotEmpty(t, fused)
	assert.InDelta(t, fused[0].FusedScore, fused[1].FusedScore, 1e-12, "tie must be exact for this test to mean anything")
	assert.Equal(t, "pair", fused[0].ChunkID)
	assert.Equal(t, "solo", fused[1].ChunkID)
}

func TestFuseTieBreaksByLexicalRank(t *testing.T) {
	// A lexical-only and a vector-only chunk at the same rank tie exactly
	// under equal weights; neither is in both, so the one with a lexical
	// rank comes first.
	f, err := NewFuser(60, Weights{Lexical: 0.5, Vector: 0.5})
	require.NoError(t, err)

	fused := f.Fuse(lexCands("lex-solo"), vecCands("vec-solo"), func(string) int { return 0 })
	require.Len(t, fused, 2)
	assert.Equal(t, "lex-solo", fused[0].ChunkID)
}

func TestFuseTieBreaksByOrdinal(t *testing.T) {
	f, err := NewFuser(60, Weights{Vector: 1})
	require.NoError(t, err)

	// Two vector-only chunks at distinct ranks never tie; force a tie by
	// fusing two separate vector-only candidates at the same rank value.
	vec := []store.ScoredCandidate{
		{ChunkID: "later", RawScore: 0.9, Rank: 1, Source: store.SourceVector},
		{ChunkID: "earlier", RawScore: 0.9, Rank: 1, Source: store.SourceVector},
	}
	ordinals := map[string]int{"earlier": 3, "later": 7}

	fused := f.Fuse(nil, vec, func(id string) int { return ordinals[id] })
	require.Len(t, fused, 2)
	assert.Equal(t, "earlier", fused[0].ChunkID)
}

func TestFuseEmptyInputs(t *testing.T) {
	f := DefaultFuser()
	assert.Empty(t, f.Fuse(nil, nil, nil))
	assert.Len(t, f.Fuse(lexCands("a"), nil, nil), 1)
	assert.Len(t, f.Fuse(nil, vecCands("a"), nil), 1)
}

func TestFuseDeterministicAcrossRuns(t *testing.T) {
	f := DefaultFuser()
	lex := lexCands("a", "b", "c", "d")
	vec := vecCands("c", "a", "e")

	first := fusedIDs(f.Fuse(lex, vec, nil))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, fusedIDs(f.Fuse(lex, vec, nil)))
	}
}

func TestFuseNoDuplicateChunkIDs(t *testing.T) {
	f := DefaultFuser()
	fused := f.Fuse(lexCands("a", "b", "c"), vecCands("b", "c", "d"), nil)

	seen := make(map[string]bool)
	for _, c := range fused {
		assert.False(t, seen[c.ChunkID], "duplicate chunk id %s", c.ChunkID)
		seen[c.ChunkID] = true
	}
	assert.Len(t, fused, 4)
}
