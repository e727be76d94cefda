// Package embed provides embedding providers for the vector index: an
// Ollama HTTP client and a deterministic local provider, behind one factory
// that falls back when the external service is unreachable. A caching
// wrapper memoizes text-to-vector computations.
package embed

import (
	"context"
	"encoding/binary"
	"math"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	// Batches are sized to stay under per-call timeouts against slow
	// embedding backends.
	DefaultBatchSize = 32

	// MaxBatchSize caps a batch to prevent memory exhaustion.
	MaxBatchSize = 256

	// StaticDimensions is the embedding width of the deterministic
	// local provider.
	StaticDimensions = 192
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// EncodeVector packs a vector into bytes for cache storage.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// DecodeVector unpacks a vector stored by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, sferrors.InternalError("corrupt cached vector: length not a multiple of 4", nil)
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
