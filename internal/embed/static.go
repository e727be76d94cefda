package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// StaticModelName identifies the static provider in diagnostics and
// cache keys.
const StaticModelName = "static-hash"

// StaticEmbedder is a deterministic, dependency-free embedding provider.
// Each token hashes into one dimension of a fixed-width signed vector, so
// identical text always yields an identical unit vector. Quality is far
// below a learned model, but behavior is reproducible, which makes it both
// the always-available fallback provider and the test embedder.
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder creates a static embedder. A non-positive width uses
// StaticDimensions.
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = StaticDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimensions)

	for _, token := range strings.Fields(text) {
		token = strings.ToLower(strings.Trim(token, ".,:;!?()[]{}\"'"))
		if token == "" {
			continue
		}

		digest := sha256.Sum256([]byte(token))
		index := int(binary.LittleEndian.Uint32(digest[:4])) % e.dimensions
		sign := float32(1)
		if digest[4]%2 != 0 {
			sign = -1
		}
		weight := 1 + float32(digest[5])/255
		vector[index] += sign * weight
	}

	return normalizeVector(vector), nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return e.dimensions }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return StaticModelName }

// Available implements Embedder. The static embedder is always ready.
func (e *StaticEmbedder) Available(ctx context.Context) bool { return true }

// Close implements Embedder.
func (e *StaticEmbedder) Close() error { return nil }

var _ Embedder = (*StaticEmbedder)(nil)
