package cache

import (
	"log/slog"
	"strings"
)

// Open selects a cache backend by name: "none", "memory", or "bolt".
// "none" returns a nil cache (callers treat nil as cache-disabled).
//
// When the bolt backend cannot be opened the factory downgrades to a
// process-local memory cache for the remainder of the process lifetime; the
// downgrade is surfaced to the caller as a diagnostic, never as a failure.
func Open(backend, path string, maxEntries int) (cache Cache, downgraded bool) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "none":
		return nil, false
	case "bolt":
		c, err := NewBoltCache(path)
		if err != nil {
			slog.Warn("persistent cache unavailable, downgrading to memory",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return NewMemoryCache(maxEntries), true
		}
		return c, false
	default:
		return NewMemoryCache(maxEntries), false
	}
}
