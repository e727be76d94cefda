package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// DefaultOllamaHost is the default Ollama API endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint. Empty uses DefaultOllamaHost.
	Host string
	// Model is the embedding model name.
	Model string
	// Timeout bounds a single embedding request.
	Timeout time.Duration
	// Retry wraps every request; zero value uses defaults.
	Retry sferrors.RetryConfig
}

// OllamaEmbedder generates embeddings via the Ollama /api/embed endpoint.
type OllamaEmbedder struct {
	config OllamaConfig
	client *http.Client

	mu   sync.Mutex
	dims int
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama-backed embedder. No network call is
// made here; use Available to probe the endpoint.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = sferrors.DefaultRetryConfig()
	}

	return &OllamaEmbedder{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, sferrors.New(sferrors.ErrCodeEmbeddingFailed, "ollama returned no embedding", nil)
	}
	return vectors[0], nil
}

// EmbedBatch implements Embedder. Transient failures (timeout, rate limit,
// 5xx) are retried with backoff; permanent failures surface immediately.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, sferrors.ValidationError(fmt.Sprintf(
			"batch of %d texts exceeds maximum %d", len(texts), MaxBatchSize), nil)
	}

	return sferrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, sferrors.InternalError("failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, sferrors.InternalError("failed to build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("ollama embed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatusError("ollama embed", resp.StatusCode, string(respBody))
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, sferrors.New(sferrors.ErrCodeEmbeddingFailed, "failed to decode embed response", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, sferrors.New(sferrors.ErrCodeEmbeddingFailed, fmt.Sprintf(
			"ollama returned %d embeddings for %d texts", len(apiResult.Embeddings), len(texts)), nil)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}

	if len(embeddings) > 0 {
		e.mu.Lock()
		e.dims = len(embeddings[0])
		e.mu.Unlock()
	}

	return embeddings, nil
}

// Dimensions implements Embedder. Returns 0 until the first successful call.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available implements Embedder by probing the tags endpoint.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)

// classifyTransportError maps a transport failure onto the error taxonomy:
// timeouts are retryable, everything else means the backend is unreachable.
func classifyTransportError(op string, err error) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return sferrors.TransientError(op+" timed out", err)
	}
	return sferrors.BackendUnavailableError(op, err)
}

// classifyStatusError maps an HTTP status onto the error taxonomy:
// rate limits and 5xx are retryable, 4xx are permanent.
func classifyStatusError(op string, status int, body string) error {
	msg := fmt.Sprintf("%s failed with status %d: %s", op, status, strings.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests:
		return sferrors.New(sferrors.ErrCodeRateLimited, msg, nil)
	case status >= 500:
		return sferrors.New(sferrors.ErrCodeServerError, msg, nil)
	default:
		return sferrors.ValidationError(msg, nil)
	}
}
