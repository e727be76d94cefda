package embed

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// FactoryConfig configures provider selection.
type FactoryConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection.
	Provider string
	// Model is the Ollama model name.
	Model string
	// Dimensions is the static embedder width.
	Dimensions int
	// OllamaHost is the Ollama endpoint.
	OllamaHost string
	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// NewEmbedder selects an embedding provider. Auto-detection prefers Ollama
// when the endpoint answers and falls back to the deterministic static
// provider otherwise. The second return value reports whether a fallback
// substitution happened, so diagnostics can name the provider actually in
// use rather than the one configured.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (embedder Embedder, usedFallback bool) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "static":
		return NewStaticEmbedder(cfg.Dimensions), false

	case "ollama":
		ollama := newOllama(cfg)
		if ollama.Available(ctx) {
			return ollama, false
		}
		slog.Warn("ollama unreachable, substituting static embedder",
			slog.String("host", ollama.config.Host))
		_ = ollama.Close()
		return NewStaticEmbedder(cfg.Dimensions), true

	default:
		// auto-detect
		ollama := newOllama(cfg)
		if ollama.Available(ctx) {
			return ollama, false
		}
		_ = ollama.Close()
		return NewStaticEmbedder(cfg.Dimensions), false
	}
}

// ProviderName reports which provider family an embedder belongs to,
// unwrapping caching decorators. Model names are user-controlled and can
// collide across providers; the concrete type cannot.
func ProviderName(e Embedder) string {
	switch v := e.(type) {
	case *CachedEmbedder:
		return ProviderName(v.inner)
	case *StaticEmbedder:
		return "static"
	case *OllamaEmbedder:
		return "ollama"
	default:
		return "unknown"
	}
}

func newOllama(cfg FactoryConfig) *OllamaEmbedder {
	return NewOllamaEmbedder(OllamaConfig{
		Host:    cfg.OllamaHost,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
}
