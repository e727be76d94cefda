package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/searchfuse/searchfuse/internal/cache"
	"github.com/searchfuse/searchfuse/internal/config"
	"github.com/searchfuse/searchfuse/internal/embed"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/rewrite"
	"github.com/searchfuse/searchfuse/internal/store"
)

// generation is one immutable index build: the chunk set, its lexical
// index, and its vector index. Queries always see a whole generation;
// a reindex builds a new one off to the side and swaps it in atomically.
type generation struct {
	id             string
	chunks         map[string]store.Chunk
	lexical        *store.LexicalIndex
	vector         store.VectorBackend
	vectorFallback bool
	builtAt        time.Time
}

func (g *generation) vectorName() string {
	if g.vector == nil {
		return "none"
	}
	return g.vector.Name()
}

// Options carries the engine's collaborators. Embedder is required; a nil
// Rewriter disables rewriting and a nil ResponseCache disables response
// caching. The fallback flags feed diagnostics so a query can report
// which providers actually served it.
type Options struct {
	Embedder embed.Embedder

	// Provider names the embedding provider family for response-cache
	// keying. Empty derives it from the embedder's concrete type; model
	// names alone are ambiguous.
	Provider string

	Rewriter         *rewrite.Rewriter
	ResponseCache    cache.Cache
	EmbedderFallback bool
	CacheDowngraded  bool
}

// Engine is the hybrid retrieval engine: BM25 and vector rankings fused
// with weighted RRF, reranked small-to-big, behind a response cache.
//
// The engine serves queries lock-free against an atomically swapped
// generation pointer; only index builds take a lock, and only against
// each other.
type Engine struct {
	fuser    *Fuser
	reranker *Reranker

	embedder  embed.Embedder
	provider  string
	rewriter  *rewrite.Rewriter
	respCache cache.Cache

	bm25          store.BM25Config
	vectorBackend string
	vectorConfig  store.VectorConfig
	topK          int
	candidateK    int
	batchSize     int
	workers       int
	responseTTL   time.Duration

	embedderFallback bool
	cacheDowngraded  bool

	gen     atomic.Pointer[generation]
	buildMu sync.Mutex
}

// NewEngine creates an engine from validated configuration. Fusion
// parameters are validated here, at construction: an engine that would
// fail every query refuses to exist instead.
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if opts.Embedder == nil {
		return nil, sferrors.ConfigError("engine requires an embedder", nil)
	}

	fuser, err := NewFuser(cfg.Search.RRFConstant, Weights{
		Lexical: cfg.Search.LexicalWeight,
		Vector:  cfg.Search.VectorWeight,
	})
	if err != nil {
		return nil, err
	}

	batchSize := cfg.Embeddings.BatchSize
	if batchSize <= 0 || batchSize > embed.MaxBatchSize {
		batchSize = embed.DefaultBatchSize
	}
	workers := cfg.Index.Workers
	if workers <= 0 {
		workers = 1
	}
	candidateK := cfg.Search.CandidateK
	if candidateK <= 0 {
		candidateK = DefaultCandidateK
	}
	provider := opts.Provider
	if provider == "" {
		provider = embed.ProviderName(opts.Embedder)
	}

	return &Engine{
		fuser: fuser,
		reranker: NewReranker(opts.Embedder,
			cfg.Search.RerankTopN, cfg.Search.RerankTopM, cfg.Search.ParentExpansion),
		embedder:  opts.Embedder,
		provider:  provider,
		rewriter:  opts.Rewriter,
		respCache: opts.ResponseCache,
		bm25:      store.BM25Config{K1: cfg.Search.BM25K1, B: cfg.Search.BM25B},

		vectorBackend: cfg.Vector.Backend,
		vectorConfig: store.VectorConfig{
			Dimensions: cfg.Embeddings.Dimensions,
			M:          cfg.Vector.M,
			EfSearch:   cfg.Vector.EfSearch,
		},

		topK:        cfg.Search.TopK,
		candidateK:  candidateK,
		batchSize:   batchSize,
		workers:     workers,
		responseTTL: cfg.Cache.ResponseTTL,

		embedderFallback: opts.EmbedderFallback,
		cacheDowngraded:  opts.CacheDowngraded,
	}, nil
}

// SubmitChunks builds a new index generation from the chunk batch and
// swaps it in. The previous generation keeps serving queries until the
// new one is complete; a failed build leaves it untouched. Returns the
// new generation's ID.
func (e *Engine) SubmitChunks(ctx context.Context, chunks []store.Chunk) (string, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if err := store.ValidateChunks(chunks); err != nil {
		return "", err
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	ordinals := make([]int, len(chunks))
	byID := make(map[string]store.Chunk, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
		ordinals[i] = c.Ordinal
		byID[c.ID] = c
	}

	start := time.Now()

	lexical, err := store.NewLexicalIndex(ids, texts, ordinals, e.bm25)
	if err != nil {
		return "", err
	}

	vector, vectorFallback := store.OpenVectorBackend(e.vectorBackend, e.vectorConfig)
	if vector != nil {
		if err := e.populateVectors(ctx, vector, ids, texts); err != nil {
			_ = vector.Close()
			return "", err
		}
	}

	gen := &generation{
		id:             uuid.NewString(),
		chunks:         byID,
		lexical:        lexical,
		vector:         vector,
		vectorFallback: vectorFallback,
		builtAt:        time.Now(),
	}

	old := e.gen.Swap(gen)
	if old != nil && old.vector != nil {
		_ = old.vector.Close()
	}

	slog.Info("index generation swapped",
		slog.String("generation", gen.id),
		slog.Int("chunks", len(chunks)),
		slog.String("vector_backend", gen.vectorName()),
		slog.Duration("build_time", time.Since(start)))

	return gen.id, nil
}

// populateVectors embeds the corpus in batches and loads the vector
// backend. Batches embed concurrently; inserts happen in corpus order so
// rebuilds of the same corpus produce the same index.
func (e *Engine) populateVectors(ctx context.Context, vector store.VectorBackend, ids, texts []string) error {
	type batch struct {
		ids   []string
		texts []string
	}

	var batches []batch
	for i := 0; i < len(ids); i += e.batchSize {
		end := i + e.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, batch{ids: ids[i:end], texts: texts[i:end]})
	}

	vectors := make([][][]float32, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			vecs, err := e.embedder.EmbedBatch(gctx, b.texts)
			if err != nil {
				return err
			}
			vectors[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, b := range batches {
		if err := vector.Add(ctx, b.ids, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve runs one hybrid query: response cache, rewrite, parallel
// lexical and vector scoring, fusion, small-to-big rerank. The rewritten
// query feeds scoring only; reranking always judges against rawQuery.
//
// An empty query, an empty index, or a query matching nothing returns an
// empty result list and no error.
func (e *Engine) Retrieve(ctx context.Context, rawQuery string, opts RetrieveOptions) ([]Result, Diagnostics, error) {
	start := time.Now()

	diag := Diagnostics{
		EmbeddingProvider: e.embedder.ModelName(),
		EmbedderFallback:  e.embedderFallback,
		CacheDowngraded:   e.cacheDowngraded,
		VectorBackend:     "none",
	}

	fuser := e.fuser
	if opts.Weights != nil || opts.KRRF > 0 {
		k := opts.KRRF
		if k <= 0 {
			k = e.fuser.K()
		}
		w := e.fuser.Weights()
		if opts.Weights != nil {
			w = *opts.Weights
		}
		var err error
		fuser, err = NewFuser(k, w)
		if err != nil {
			return nil, diag, err
		}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = e.topK
	}

	gen := e.gen.Load()
	if gen == nil || gen.lexical.Len() == 0 {
		diag.Timings.Total = time.Since(start)
		return []Result{}, diag, nil
	}
	diag.Generation = gen.id
	diag.VectorBackend = gen.vectorName()
	diag.VectorFallback = gen.vectorFallback

	if strings.TrimSpace(rawQuery) == "" {
		diag.Timings.Total = time.Since(start)
		return []Result{}, diag, nil
	}

	var cacheKey string
	if e.respCache != nil {
		cacheKey = ResponseKey(rawQuery, e.providerName(), e.embedder.ModelName(), topK, fuser.K(), fuser.Weights())
		if data, found, err := e.respCache.Get(ctx, cacheKey); err == nil && found {
			var cached cachedResponse
			if json.Unmarshal(data, &cached) == nil {
				diag.ResponseCacheHit = true
				diag.Rewritten = cached.Rewritten
				diag.RewrittenQuery = cached.RewrittenQuery
				diag.Timings.Total = time.Since(start)
				return cached.Results, diag, nil
			}
		}
	}

	scoringQuery := rawQuery
	if e.rewriter != nil {
		rewriteStart := time.Now()
		query, rewritten := e.rewriter.Rewrite(ctx, rawQuery)
		diag.Timings.Rewrite = time.Since(rewriteStart)
		if rewritten {
			scoringQuery = query
			diag.Rewritten = true
			diag.RewrittenQuery = query
		}
	}

	var lexical, vector []store.ScoredCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexStart := time.Now()
		lexical = store.NormalizeScores(gen.lexical.ScoreQuery(scoringQuery))
		if len(lexical) > e.candidateK {
			lexical = lexical[:e.candidateK]
		}
		diag.Timings.Lexical = time.Since(lexStart)
		return nil
	})
	g.Go(func() error {
		if gen.vector == nil || fuser.Weights().Vector == 0 {
			return nil
		}
		vecStart := time.Now()
		defer func() { diag.Timings.Vector = time.Since(vecStart) }()

		queryVec, err := e.embedder.Embed(gctx, scoringQuery)
		if err != nil {
			slog.Warn("query embedding failed, serving lexical-only results",
				slog.String("error", err.Error()))
			diag.VectorDegraded = true
			return nil
		}
		hits, err := gen.vector.Search(gctx, queryVec, e.candidateK)
		if err != nil {
			slog.Warn("vector search failed, serving lexical-only results",
				slog.String("error", err.Error()))
			diag.VectorDegraded = true
			return nil
		}

		vector = make([]store.ScoredCandidate, len(hits))
		for i, hit := range hits {
			vector[i] = store.ScoredCandidate{
				ChunkID:  hit.ID,
				RawScore: hit.Score,
				Rank:     i + 1,
				Source:   store.SourceVector,
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, diag, err
	}
	if err := ctx.Err(); err != nil {
		return nil, diag, err
	}

	fusionStart := time.Now()
	fused := fuser.Fuse(lexical, vector, func(id string) int {
		return gen.chunks[id].Ordinal
	})
	diag.Timings.Fusion = time.Since(fusionStart)

	rerankStart := time.Now()
	results := e.reranker.Rerank(ctx, rawQuery, fused, func(id string) (store.Chunk, bool) {
		c, ok := gen.chunks[id]
		return c, ok
	})
	diag.Timings.Rerank = time.Since(rerankStart)

	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []Result{}
	}

	if e.respCache != nil {
		payload, err := json.Marshal(cachedResponse{
			Results:        results,
			Rewritten:      diag.Rewritten,
			RewrittenQuery: diag.RewrittenQuery,
		})
		if err == nil {
			if putErr := e.respCache.Put(ctx, cacheKey, payload, e.responseTTL); putErr != nil {
				slog.Debug("response cache write failed", slog.String("error", putErr.Error()))
			}
		}
	}

	diag.Timings.Total = time.Since(start)
	return results, diag, nil
}

// InvalidateResponseCache drops every cached response. Call it right
// after a reindex so no query serves results from a dead generation.
func (e *Engine) InvalidateResponseCache(ctx context.Context) error {
	if e.respCache == nil {
		return nil
	}
	return e.respCache.InvalidateAll(ctx)
}

// Generation returns the live generation ID, or "" before the first build.
func (e *Engine) Generation() string {
	if gen := e.gen.Load(); gen != nil {
		return gen.id
	}
	return ""
}

// ChunkCount returns the number of chunks in the live generation.
func (e *Engine) ChunkCount() int {
	if gen := e.gen.Load(); gen != nil {
		return len(gen.chunks)
	}
	return 0
}

// Chunk returns a chunk from the live generation by ID.
func (e *Engine) Chunk(id string) (store.Chunk, bool) {
	gen := e.gen.Load()
	if gen == nil {
		return store.Chunk{}, false
	}
	c, ok := gen.chunks[id]
	return c, ok
}

// providerName is the provider identity keyed into the response cache. It
// reflects the embedder actually in use, fallback substitutions included.
func (e *Engine) providerName() string {
	return e.provider
}

// Close releases the engine's resources. The embedder, rewriter, and
// response cache have their own lifecycles and are closed by their owner.
func (e *Engine) Close() error {
	if gen := e.gen.Swap(nil); gen != nil && gen.vector != nil {
		return gen.vector.Close()
	}
	return nil
}
