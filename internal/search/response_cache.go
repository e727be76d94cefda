package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// responseKeyPayload is the canonical form hashed into a response cache key.
// The provider and model identity are part of the key so a provider swap
// (including a fallback substitution) can never serve results computed
// under a different embedding space.
type responseKeyPayload struct {
	Query         string  `json:"query"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	TopK          int     `json:"top_k"`
	KRRF          int     `json:"k_rrf"`
	LexicalWeight float64 `json:"lexical_weight"`
	VectorWeight  float64 `json:"vector_weight"`
}

// cachedResponse is the serialized value stored per response cache entry.
type cachedResponse struct {
	Results        []Result `json:"results"`
	Rewritten      bool     `json:"rewritten"`
	RewrittenQuery string   `json:"rewritten_query,omitempty"`
}

// NormalizeQuery lowercases and collapses whitespace so trivially different
// spellings of the same query share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// ResponseKey builds the cache key for a query under the given provider,
// model, and retrieval parameters.
func ResponseKey(query, provider, model string, topK, kRRF int, weights Weights) string {
	payload, _ := json.Marshal(responseKeyPayload{
		Query:         NormalizeQuery(query),
		Provider:      provider,
		Model:         model,
		TopK:          topK,
		KRRF:          kRRF,
		LexicalWeight: weights.Lexical,
		VectorWeight:  weights.Vector,
	})
	sum := sha256.Sum256(payload)
	return "resp:" + hex.EncodeToString(sum[:])
}
