// Package rewrite expands a raw user query into a retrieval-optimized one
// via an LLM call. Rewriting is strictly best-effort: on timeout, transport
// failure, or an empty response the raw query is returned unchanged, so a
// broken rewriter can degrade retrieval quality but never block it.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTimeout bounds a single rewrite call.
	DefaultTimeout = 10 * time.Second

	// DefaultCacheSize is the rewrite cache capacity.
	DefaultCacheSize = 256

	defaultHost = "http://localhost:11434"
)

// fallbackPrompt is the built-in system prompt used when no prompt file is
// configured or the configured file cannot be read.
const fallbackPrompt = "Você é um especialista em recuperação de documentos técnicos. " +
	"Reescreva a pergunta do usuário com termos técnicos do domínio, " +
	"preservando a intenção original. " +
	"Responda APENAS com a pergunta reescrita, sem explicações."

// Config configures the rewriter.
type Config struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the generation model used for rewriting.
	Model string
	// Timeout bounds a single rewrite call.
	Timeout time.Duration
	// PromptPath points to a custom system prompt file. Empty uses the
	// built-in prompt.
	PromptPath string
	// CacheSize is the rewrite cache capacity in entries.
	CacheSize int
}

// Rewriter rewrites queries through Ollama's generate endpoint, caching
// results per normalized raw query.
type Rewriter struct {
	config Config
	prompt string
	client *http.Client
	cache  *lru.Cache[string, string]
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// New creates a rewriter.
func New(cfg Config) *Rewriter {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	cache, _ := lru.New[string, string](cfg.CacheSize)

	return &Rewriter{
		config: cfg,
		prompt: loadPrompt(cfg.PromptPath),
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
	}
}

// loadPrompt reads the system prompt file, falling back to the built-in
// prompt when the file is missing or unreadable.
func loadPrompt(path string) string {
	if path == "" {
		return fallbackPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("rewrite prompt file unreadable, using built-in prompt",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fallbackPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return fallbackPrompt
	}
	return prompt
}

// Rewrite returns the retrieval-optimized form of rawQuery and whether a
// rewrite actually happened. Every failure path returns the raw query with
// rewritten=false; the caller never sees an error.
func (r *Rewriter) Rewrite(ctx context.Context, rawQuery string) (query string, rewritten bool) {
	normalized := strings.TrimSpace(rawQuery)
	if normalized == "" {
		return rawQuery, false
	}

	if cached, ok := r.cache.Get(normalized); ok {
		return cached, cached != normalized
	}

	result := r.callGenerate(ctx, normalized)
	if result == "" {
		result = normalized
	}

	r.cache.Add(normalized, result)
	return result, result != normalized
}

// callGenerate performs one bounded generate call. Any failure returns "".
func (r *Rewriter) callGenerate(ctx context.Context, prompt string) string {
	callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  r.config.Model,
		System: r.prompt,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("query rewrite failed, using raw query", slog.String("error", err.Error()))
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("query rewrite failed, using raw query", slog.Int("status", resp.StatusCode))
		return ""
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ""
	}

	return strings.TrimSpace(decoded.Response)
}

// InvalidateAll drops every cached rewrite.
func (r *Rewriter) InvalidateAll() {
	r.cache.Purge()
}

// Len returns the number of cached rewrites.
func (r *Rewriter) Len() int {
	return r.cache.Len()
}
