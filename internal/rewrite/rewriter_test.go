package rewrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRewriter(t *testing.T, handler http.Handler) (*Rewriter, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Config{
		Host:    server.URL,
		Model:   "test-model",
		Timeout: time.Second,
	}), server
}

func rewriteHandler(response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: response})
	})
}

func TestRewriteReturnsExpandedQuery(t *testing.T) {
	r, _ := newTestRewriter(t, rewriteHandler("qual o prazo contratual de entrega"))

	query, rewritten := r.Rewrite(context.Background(), "qual o prazo")
	assert.Equal(t, "qual o prazo contratual de entrega", query)
	assert.True(t, rewritten)
}

func TestRewriteCachesPerRawQuery(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "reescrita"})
	})
	r, _ := newTestRewriter(t, handler)

	ctx := context.Background()
	first, _ := r.Rewrite(ctx, "qual o prazo")
	second, _ := r.Rewrite(ctx, "  qual o prazo  ") // same after normalization

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRewriteTimeoutFallsBackToRawQuery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "tarde demais"})
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r := New(Config{Host: server.URL, Model: "m", Timeout: 20 * time.Millisecond})

	query, rewritten := r.Rewrite(context.Background(), "qual o prazo")
	assert.Equal(t, "qual o prazo", query)
	assert.False(t, rewritten)
}

func TestRewriteServerErrorFallsBackToRawQuery(t *testing.T) {
	r, _ := newTestRewriter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	query, rewritten := r.Rewrite(context.Background(), "qual o prazo")
	assert.Equal(t, "qual o prazo", query)
	assert.False(t, rewritten)
}

func TestRewriteUnreachableHostFallsBackToRawQuery(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	r := New(Config{Host: url, Model: "m", Timeout: 100 * time.Millisecond})

	query, rewritten := r.Rewrite(context.Background(), "qual o prazo")
	assert.Equal(t, "qual o prazo", query)
	assert.False(t, rewritten)
}

func TestRewriteEmptyResponseFallsBackToRawQuery(t *testing.T) {
	r, _ := newTestRewriter(t, rewriteHandler("   "))

	query, rewritten := r.Rewrite(context.Background(), "qual o prazo")
	assert.Equal(t, "qual o prazo", query)
	assert.False(t, rewritten)
}

func TestRewriteEmptyQueryIsUntouched(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	r, _ := newTestRewriter(t, handler)

	query, rewritten := r.Rewrite(context.Background(), "   ")
	assert.Equal(t, "   ", query)
	assert.False(t, rewritten)
	assert.Equal(t, int64(0), calls.Load())
}

func TestRewriteSendsConfiguredPrompt(t *testing.T) {
	promptPath := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("prompt customizado"), 0o644))

	var gotSystem string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotSystem = req.System
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r := New(Config{Host: server.URL, Model: "m", PromptPath: promptPath})
	r.Rewrite(context.Background(), "pergunta")

	assert.Equal(t, "prompt customizado", gotSystem)
}

func TestLoadPromptFallsBack(t *testing.T) {
	assert.Equal(t, fallbackPrompt, loadPrompt(""))
	assert.Equal(t, fallbackPrompt, loadPrompt(filepath.Join(t.TempDir(), "missing.txt")))
}

func TestInvalidateAll(t *testing.T) {
	r, _ := newTestRewriter(t, rewriteHandler("reescrita"))

	r.Rewrite(context.Background(), "pergunta")
	require.Equal(t, 1, r.Len())

	r.InvalidateAll()
	assert.Equal(t, 0, r.Len())
}
