package store

import (
	"fmt"
	"math"
	"sort"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// BM25Config holds the BM25 scoring parameters.
type BM25Config struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalization.
	B float64
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// LexicalIndex is an in-memory inverted index with BM25 scoring.
// It is built once per generation and is read-only afterwards, so query-time
// scoring needs no locking.
type LexicalIndex struct {
	cfg BM25Config

	ids      []string
	ordinals []int
	docLens  []int
	avgLen   float64

	// postings maps term -> document index -> term frequency.
	postings map[string]map[int]int
	// docFreq maps term -> number of documents containing it.
	docFreq map[string]int
	// byID maps chunk ID -> document index.
	byID map[string]int
}

// NewLexicalIndex builds a BM25 index over parallel arrays of chunk IDs,
// texts, and ordinals. The arrays must be aligned: a length mismatch means
// the caller filtered one array without the others, silently pairing IDs
// with the wrong content, and is rejected as a configuration error.
func NewLexicalIndex(ids []string, texts []string, ordinals []int, cfg BM25Config) (*LexicalIndex, error) {
	if len(ids) != len(texts) || len(ids) != len(ordinals) {
		return nil, sferrors.MisalignedInputError(fmt.Sprintf(
			"parallel arrays disagree: %d ids, %d texts, %d ordinals",
			len(ids), len(texts), len(ordinals)))
	}
	if cfg.K1 <= 0 {
		return nil, sferrors.ConfigError(fmt.Sprintf("bm25 k1 must be positive, got %f", cfg.K1), nil)
	}
	if cfg.B < 0 || cfg.B > 1 {
		return nil, sferrors.ConfigError(fmt.Sprintf("bm25 b must be between 0 and 1, got %f", cfg.B), nil)
	}

	idx := &LexicalIndex{
		cfg:      cfg,
		ids:      append([]string(nil), ids...),
		ordinals: append([]int(nil), ordinals...),
		docLens:  make([]int, len(ids)),
		postings: make(map[string]map[int]int),
		docFreq:  make(map[string]int),
		byID:     make(map[string]int, len(ids)),
	}

	totalLen := 0
	for i, text := range texts {
		if prev, dup := idx.byID[ids[i]]; dup {
			return nil, sferrors.MisalignedInputError(fmt.Sprintf(
				"duplicate chunk id %q at positions %d and %d", ids[i], prev, i))
		}
		idx.byID[ids[i]] = i

		terms := Tokenize(text)
		idx.docLens[i] = len(terms)
		totalLen += len(terms)

		for _, term := range terms {
			docs, ok := idx.postings[term]
			if !ok {
				docs = make(map[int]int)
				idx.postings[term] = docs
			}
			if docs[i] == 0 {
				idx.docFreq[term]++
			}
			docs[i]++
		}
	}

	if len(ids) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(ids))
	}

	return idx, nil
}

// Len returns the number of indexed chunks.
func (x *LexicalIndex) Len() int {
	return len(x.ids)
}

// OrdinalOf returns the ordinal for a chunk ID.
func (x *LexicalIndex) OrdinalOf(id string) (int, bool) {
	i, ok := x.byID[id]
	if !ok {
		return 0, false
	}
	return x.ordinals[i], true
}

// ScoreQuery tokenizes the query and scores it against the index.
func (x *LexicalIndex) ScoreQuery(query string) []ScoredCandidate {
	return x.Score(Tokenize(query))
}

// Score sums per-term BM25 contributions for each chunk and returns hits in
// descending score order, ties broken by lower chunk ordinal. Chunks with a
// zero score are omitted. An empty query or empty index yields an empty
// result, not an error.
func (x *LexicalIndex) Score(terms []string) []ScoredCandidate {
	if len(terms) == 0 || len(x.ids) == 0 {
		return []ScoredCandidate{}
	}

	n := float64(len(x.ids))
	scores := make(map[int]float64)

	for _, term := range terms {
		df := x.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for doc, tf := range x.postings[term] {
			tfF := float64(tf)
			norm := 1 - x.cfg.B + x.cfg.B*float64(x.docLens[doc])/x.avgLen
			scores[doc] += idf * tfF * (x.cfg.K1 + 1) / (tfF + x.cfg.K1*norm)
		}
	}

	docs := make([]int, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return x.ordinals[docs[i]] < x.ordinals[docs[j]]
	})

	results := make([]ScoredCandidate, len(docs))
	for rank, doc := range docs {
		results[rank] = ScoredCandidate{
			ChunkID:  x.ids[doc],
			RawScore: scores[doc],
			Rank:     rank + 1,
			Source:   SourceLexical,
		}
	}
	return results
}
