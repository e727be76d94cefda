// Package config loads and validates searchfuse configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (.searchfuse.yaml in the working directory)
//  3. Environment variables (SEARCHFUSE_*)
//
// Validation runs once at load time. An invalid configuration is a fatal
// error surfaced before any index build or query runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/searchfuse/searchfuse/internal/embed"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// Config represents the complete searchfuse configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Rewrite    RewriteConfig    `yaml:"rewrite" json:"rewrite"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// SearchConfig configures hybrid search parameters.
// Weights and the RRF constant can be tuned per project via .searchfuse.yaml
// or overridden with SEARCHFUSE_LEXICAL_WEIGHT, SEARCHFUSE_VECTOR_WEIGHT and
// SEARCHFUSE_RRF_CONSTANT.
type SearchConfig struct {
	// LexicalWeight is the RRF weight for the BM25 ranking.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// VectorWeight is the RRF weight for the vector ranking.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// RRFConstant is the RRF smoothing parameter k. Higher values reduce
	// the impact of rank differences. Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// BM25K1 controls term-frequency saturation. Default: 1.5.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`

	// BM25B controls document-length normalization. Default: 0.75.
	BM25B float64 `yaml:"bm25_b" json:"bm25_b"`

	// TopK is the number of final results returned per query.
	TopK int `yaml:"top_k" json:"top_k"`

	// CandidateK is how many candidates each ranking contributes to fusion.
	CandidateK int `yaml:"candidate_k" json:"candidate_k"`

	// RerankTopN is how many fused candidates the reranker re-scores.
	RerankTopN int `yaml:"rerank_top_n" json:"rerank_top_n"`

	// RerankTopM is how many reranked candidates survive into expansion.
	RerankTopM int `yaml:"rerank_top_m" json:"rerank_top_m"`

	// ParentExpansion replaces small chunks with their parents after
	// reranking (small-to-big).
	ParentExpansion bool `yaml:"parent_expansion" json:"parent_expansion"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection (ollama when reachable, static otherwise).
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the embedding cache capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// CacheTTL bounds how long a cached embedding stays valid.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// RewriteConfig configures the LLM query rewriter.
type RewriteConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Model   string `yaml:"model" json:"model"`

	// Timeout bounds a single rewrite call. On expiry the raw query is
	// used unchanged. Default: 10s.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// PromptPath points to a custom system prompt file. Empty uses the
	// built-in prompt.
	PromptPath string `yaml:"prompt_path" json:"prompt_path"`

	// CacheSize is the rewrite cache capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// CacheConfig configures the shared TTL cache used by the embedding and
// response caches.
type CacheConfig struct {
	// Backend selects the cache backend: "none", "memory", or "bolt".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the bolt database file (backend "bolt" only).
	Path string `yaml:"path" json:"path"`

	// MaxEntries bounds the in-memory backend.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// ResponseTTL bounds how long a cached query response stays valid.
	ResponseTTL time.Duration `yaml:"response_ttl" json:"response_ttl"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	// Backend selects the vector index: "hnsw" or "memory" (brute force).
	Backend string `yaml:"backend" json:"backend"`

	// M is the HNSW graph connectivity parameter.
	M int `yaml:"m" json:"m"`

	// EfSearch is the HNSW search beam width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// IndexConfig configures reindexing.
type IndexConfig struct {
	// Workers bounds the embedding worker pool during reindex.
	Workers int `yaml:"workers" json:"workers"`

	// WatchDebounce is the quiet period before a file change triggers a
	// reindex.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`

	// LockPath is the flock file guarding concurrent reindexes.
	LockPath string `yaml:"lock_path" json:"lock_path"`
}

// StorageConfig configures chunk persistence.
type StorageConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path" json:"path"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			// Lexical matching carries more weight than vector similarity
			// by default; the corpus this engine was tuned on rewards
			// exact-term matches.
			LexicalWeight: 0.65,
			VectorWeight:  0.35,
			// RRF constant k=60 is the industry standard
			RRFConstant:     60,
			BM25K1:          1.5,
			BM25B:           0.75,
			TopK:            5,
			CandidateK:      50,
			RerankTopN:      20,
			RerankTopM:      8,
			ParentExpansion: true,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // auto-detect
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from embedder
			BatchSize:  32,
			Timeout:    30 * time.Second,
			OllamaHost: "", // empty uses http://localhost:11434
			CacheSize:  4096,
			CacheTTL:   24 * time.Hour,
		},
		Rewrite: RewriteConfig{
			Enabled:   true,
			Model:     "qwen3:0.6b",
			Timeout:   10 * time.Second,
			CacheSize: 256,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			Path:        "",
			MaxEntries:  1024,
			ResponseTTL: time.Hour,
		},
		Vector: VectorConfig{
			Backend:  "hnsw",
			M:        16,
			EfSearch: 64,
		},
		Index: IndexConfig{
			Workers:       runtime.NumCPU(),
			WatchDebounce: 500 * time.Millisecond,
			LockPath:      "",
		},
		Storage: StorageConfig{
			Path: "",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .searchfuse.yaml or
// .searchfuse.yml. A missing file is fine; defaults apply.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".searchfuse.yaml", ".searchfuse.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sferrors.New(sferrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return sferrors.ConfigError(
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
// Weights merge on non-zero only; a zero weight is set via env override.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.CandidateK != 0 {
		c.Search.CandidateK = other.Search.CandidateK
	}
	if other.Search.RerankTopN != 0 {
		c.Search.RerankTopN = other.Search.RerankTopN
	}
	if other.Search.RerankTopM != 0 {
		c.Search.RerankTopM = other.Search.RerankTopM
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.CacheTTL != 0 {
		c.Embeddings.CacheTTL = other.Embeddings.CacheTTL
	}

	if other.Rewrite.Model != "" {
		c.Rewrite.Model = other.Rewrite.Model
		c.Rewrite.Enabled = other.Rewrite.Enabled
	}
	if other.Rewrite.Timeout != 0 {
		c.Rewrite.Timeout = other.Rewrite.Timeout
	}
	if other.Rewrite.PromptPath != "" {
		c.Rewrite.PromptPath = other.Rewrite.PromptPath
	}
	if other.Rewrite.CacheSize != 0 {
		c.Rewrite.CacheSize = other.Rewrite.CacheSize
	}

	if other.Cache.Backend != "" {
		c.Cache.Backend = other.Cache.Backend
	}
	if other.Cache.Path != "" {
		c.Cache.Path = other.Cache.Path
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}
	if other.Cache.ResponseTTL != 0 {
		c.Cache.ResponseTTL = other.Cache.ResponseTTL
	}

	if other.Vector.Backend != "" {
		c.Vector.Backend = other.Vector.Backend
	}
	if other.Vector.M != 0 {
		c.Vector.M = other.Vector.M
	}
	if other.Vector.EfSearch != 0 {
		c.Vector.EfSearch = other.Vector.EfSearch
	}

	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.WatchDebounce != 0 {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}
	if other.Index.LockPath != "" {
		c.Index.LockPath = other.Index.LockPath
	}

	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnvOverrides applies SEARCHFUSE_* environment variable overrides.
// Env vars are the only way to set an explicit zero weight.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHFUSE_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("SEARCHFUSE_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("SEARCHFUSE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("SEARCHFUSE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SEARCHFUSE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SEARCHFUSE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEARCHFUSE_REWRITE_ENABLED"); v != "" {
		c.Rewrite.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SEARCHFUSE_REWRITE_MODEL"); v != "" {
		c.Rewrite.Model = v
	}
	if v := os.Getenv("SEARCHFUSE_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("SEARCHFUSE_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("SEARCHFUSE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration. Any violation is a fatal
// configuration error raised here, never at query time.
func (c *Config) Validate() error {
	if c.Search.LexicalWeight < 0 {
		return sferrors.New(sferrors.ErrCodeInvalidWeights,
			fmt.Sprintf("lexical_weight must be non-negative, got %f", c.Search.LexicalWeight), nil)
	}
	if c.Search.VectorWeight < 0 {
		return sferrors.New(sferrors.ErrCodeInvalidWeights,
			fmt.Sprintf("vector_weight must be non-negative, got %f", c.Search.VectorWeight), nil)
	}
	if c.Search.LexicalWeight == 0 && c.Search.VectorWeight == 0 {
		return sferrors.New(sferrors.ErrCodeInvalidWeights,
			"at least one of lexical_weight and vector_weight must be positive", nil)
	}
	if c.Search.RRFConstant <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("rrf_constant must be positive, got %d", c.Search.RRFConstant), nil)
	}
	if c.Search.BM25K1 <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("bm25_k1 must be positive, got %f", c.Search.BM25K1), nil)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return sferrors.ConfigError(
			fmt.Sprintf("bm25_b must be between 0 and 1, got %f", c.Search.BM25B), nil)
	}
	if c.Search.TopK <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.Search.CandidateK <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("candidate_k must be positive, got %d", c.Search.CandidateK), nil)
	}
	if c.Search.RerankTopN <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("rerank_top_n must be positive, got %d", c.Search.RerankTopN), nil)
	}
	if c.Search.RerankTopM <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("rerank_top_m must be positive, got %d", c.Search.RerankTopM), nil)
	}
	if c.Search.RerankTopM > c.Search.RerankTopN {
		return sferrors.ConfigError(
			fmt.Sprintf("rerank_top_m (%d) must not exceed rerank_top_n (%d)",
				c.Search.RerankTopM, c.Search.RerankTopN), nil)
	}

	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"ollama": true, "static": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return sferrors.ConfigError(
				fmt.Sprintf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s",
					c.Embeddings.Provider), nil)
		}
	}

	if c.Embeddings.BatchSize <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.BatchSize > embed.MaxBatchSize {
		return sferrors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must not exceed %d, got %d",
				embed.MaxBatchSize, c.Embeddings.BatchSize), nil)
	}

	if c.Rewrite.Timeout <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("rewrite.timeout must be positive, got %s", c.Rewrite.Timeout), nil)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "none", "memory":
	case "bolt":
		if c.Cache.Path == "" {
			return sferrors.ConfigError("cache.path is required for the bolt backend", nil)
		}
	default:
		return sferrors.ConfigError(
			fmt.Sprintf("cache.backend must be 'none', 'memory', or 'bolt', got %s", c.Cache.Backend), nil)
	}

	switch strings.ToLower(c.Vector.Backend) {
	case "hnsw", "memory":
	default:
		return sferrors.ConfigError(
			fmt.Sprintf("vector.backend must be 'hnsw' or 'memory', got %s", c.Vector.Backend), nil)
	}
	if c.Vector.M <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("vector.m must be positive, got %d", c.Vector.M), nil)
	}
	if c.Vector.EfSearch <= 0 {
		return sferrors.ConfigError(
			fmt.Sprintf("vector.ef_search must be positive, got %d", c.Vector.EfSearch), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return sferrors.ConfigError(
			fmt.Sprintf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level), nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return sferrors.ConfigError("failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return sferrors.ConfigError("failed to write config file", err)
	}

	return nil
}
