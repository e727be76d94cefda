package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

func buildIndex(t *testing.T, texts []string) *LexicalIndex {
	t.Helper()

	ids := make([]string, len(texts))
	ordinals := make([]int, len(texts))
	for i := range texts {
		ids[i] = chunkID(i)
		ordinals[i] = i
	}

	idx, err := NewLexicalIndex(ids, texts, ordinals, DefaultBM25Config())
	require.NoError(t, err)
	return idx
}

func chunkID(i int) string {
	return []string{"c1", "c2", "c3", "c4", "c5"}[i]
}

func TestNewLexicalIndexRejectsMisalignedArrays(t *testing.T) {
	_, err := NewLexicalIndex(
		[]string{"c1", "c2"},
		[]string{"only one text"},
		[]int{0, 1},
		DefaultBM25Config(),
	)

	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeMisalignedInput, sferrors.GetCode(err))
	assert.True(t, sferrors.IsFatal(err))
}

func TestNewLexicalIndexRejectsDuplicateIDs(t *testing.T) {
	_, err := NewLexicalIndex(
		[]string{"c1", "c1"},
		[]string{"a", "b"},
		[]int{0, 1},
		DefaultBM25Config(),
	)

	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeMisalignedInput, sferrors.GetCode(err))
}

func TestNewLexicalIndexRejectsBadParameters(t *testing.T) {
	_, err := NewLexicalIndex([]string{"c1"}, []string{"a"}, []int{0}, BM25Config{K1: 0, B: 0.75})
	require.Error(t, err)
	assert.True(t, sferrors.IsConfig(err))

	_, err = NewLexicalIndex([]string{"c1"}, []string{"a"}, []int{0}, BM25Config{K1: 1.5, B: 1.2})
	require.Error(t, err)
	assert.True(t, sferrors.IsConfig(err))
}

func TestScoreRanksTermMatchFirst(t *testing.T) {
	// End-to-end lexical scenario: the chunk containing the query terms
	// must rank first.
	idx := buildIndex(t, []string{
		"prazo é 30 dias",
		"multa de 2%",
		"vigência até 2025",
	})

	results := idx.ScoreQuery("qual o prazo")
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, SourceLexical, results[0].Source)
	assert.Greater(t, results[0].RawScore, 0.0)
}

func TestScoreEmptyQueryAndEmptyIndex(t *testing.T) {
	idx := buildIndex(t, []string{"prazo é 30 dias"})
	assert.Empty(t, idx.Score(nil))
	assert.Empty(t, idx.ScoreQuery("   "))

	empty, err := NewLexicalIndex(nil, nil, nil, DefaultBM25Config())
	require.NoError(t, err)
	assert.Empty(t, empty.ScoreQuery("prazo"))
}

func TestScoreNoMatchesYieldsEmpty(t *testing.T) {
	idx := buildIndex(t, []string{"prazo é 30 dias", "multa de 2%"})
	assert.Empty(t, idx.ScoreQuery("inexistente"))
}

func TestScoreTieBrokenByOrdinal(t *testing.T) {
	// Identical documents score identically; the lower ordinal wins.
	idx := buildIndex(t, []string{
		"pagamento mensal",
		"pagamento mensal",
		"outro assunto",
	})

	results := idx.ScoreQuery("pagamento")
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "c2", results[1].ChunkID)
}

func TestScoreIsDeterministic(t *testing.T) {
	idx := buildIndex(t, []string{
		"prazo de entrega prazo",
		"prazo final",
		"multa por atraso na entrega",
		"vigência até 2025",
	})

	first := idx.ScoreQuery("prazo entrega")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, idx.ScoreQuery("prazo entrega"))
	}
}

func TestScoreRanksAreSequential(t *testing.T) {
	idx := buildIndex(t, []string{
		"prazo de entrega",
		"prazo final",
		"prazo e multa",
	})

	results := idx.ScoreQuery("prazo")
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
	}
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].RawScore, results[i].RawScore)
	}
}

func TestOrdinalOf(t *testing.T) {
	idx := buildIndex(t, []string{"um", "dois"})

	ord, ok := idx.OrdinalOf("c2")
	require.True(t, ok)
	assert.Equal(t, 1, ord)

	_, ok = idx.OrdinalOf("missing")
	assert.False(t, ok)
}

func TestNormalizeScores(t *testing.T) {
	in := []ScoredCandidate{
		{ChunkID: "c1", RawScore: 4.0, Rank: 1},
		{ChunkID: "c2", RawScore: 2.0, Rank: 2},
	}

	out := NormalizeScores(in)
	assert.Equal(t, 1.0, out[0].RawScore)
	assert.Equal(t, 0.5, out[1].RawScore)
	// input untouched
	assert.Equal(t, 4.0, in[0].RawScore)

	assert.Empty(t, NormalizeScores(nil))
}
