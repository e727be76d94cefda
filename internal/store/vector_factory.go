package store

import (
	"log/slog"
	"strings"
)

// OpenVectorBackend selects a vector backend by name. Selection and fallback
// live behind this one factory: an unknown or unavailable backend substitutes
// the deterministic in-memory implementation so query behavior is unaffected
// beyond latency, and the substitution is reported to the caller so
// diagnostics never misstate the provider actually used.
//
// Recognized names: "hnsw", "memory", "none". "none" disables vector search
// and returns a nil backend.
func OpenVectorBackend(name string, cfg VectorConfig) (backend VectorBackend, usedFallback bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return nil, false
	case "memory":
		return NewMemoryBackend(cfg), false
	case "hnsw", "":
		return NewHNSWBackend(cfg), false
	default:
		slog.Warn("unknown vector backend, substituting in-memory fallback",
			slog.String("requested", name))
		return NewMemoryBackend(cfg), true
	}
}
