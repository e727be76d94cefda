// Package cmd provides the CLI commands for searchfuse.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/cache"
	"github.com/searchfuse/searchfuse/internal/config"
	"github.com/searchfuse/searchfuse/internal/embed"
	"github.com/searchfuse/searchfuse/internal/index"
	"github.com/searchfuse/searchfuse/internal/logging"
	"github.com/searchfuse/searchfuse/internal/rewrite"
	"github.com/searchfuse/searchfuse/internal/search"
	"github.com/searchfuse/searchfuse/internal/store"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchfuse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchfuse",
		Short: "Hybrid retrieval engine for document corpora",
		Long: `searchfuse serves hybrid search over chunked document corpora:
BM25 keyword ranking and vector similarity fused with weighted
Reciprocal Rank Fusion, reranked small-to-big against the original query.

Configuration is read from .searchfuse.yaml in the working directory,
overridable with SEARCHFUSE_* environment variables.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("searchfuse version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	// Command output owns the terminal; logs go to the file.
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// stack is everything a command needs to serve queries or reindex.
type stack struct {
	cfg         *config.Config
	engine      *search.Engine
	coordinator *index.Coordinator
	cleanups    []func()
}

func (s *stack) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

// buildStack loads configuration and wires the full retrieval stack:
// embedder (with its cache), rewriter, response cache, engine, persistence,
// and coordinator.
func buildStack(cmd *cobra.Command) (*stack, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg}
	ctx := cmd.Context()

	embedder, embedderFallback := embed.NewEmbedder(ctx, embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Timeout:    cfg.Embeddings.Timeout,
	})
	s.cleanups = append(s.cleanups, func() { _ = embedder.Close() })

	embedCache, embedDowngraded := cache.Open(cfg.Cache.Backend,
		derivedCachePath(cfg.Cache.Path, "embeddings"), cfg.Embeddings.CacheSize)
	if embedCache != nil {
		s.cleanups = append(s.cleanups, func() { _ = embedCache.Close() })
	}
	cachedEmbedder := embed.NewCachedEmbedder(embedder, embedCache, cfg.Embeddings.CacheTTL)

	respCache, respDowngraded := cache.Open(cfg.Cache.Backend, cfg.Cache.Path, cfg.Cache.MaxEntries)
	if respCache != nil {
		s.cleanups = append(s.cleanups, func() { _ = respCache.Close() })
	}

	var rewriter *rewrite.Rewriter
	if cfg.Rewrite.Enabled {
		rewriter = rewrite.New(rewrite.Config{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Rewrite.Model,
			Timeout:    cfg.Rewrite.Timeout,
			PromptPath: cfg.Rewrite.PromptPath,
			CacheSize:  cfg.Rewrite.CacheSize,
		})
	}

	engine, err := search.NewEngine(cfg, search.Options{
		Embedder:         cachedEmbedder,
		Provider:         embed.ProviderName(embedder),
		Rewriter:         rewriter,
		ResponseCache:    respCache,
		EmbedderFallback: embedderFallback,
		CacheDowngraded:  embedDowngraded || respDowngraded,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.engine = engine
	s.cleanups = append(s.cleanups, func() { _ = engine.Close() })

	var sqlStore *store.SQLiteStore
	if cfg.Storage.Path != "" {
		sqlStore, err = store.OpenSQLiteStore(cfg.Storage.Path)
		if err != nil {
			s.close()
			return nil, err
		}
		s.cleanups = append(s.cleanups, func() { _ = sqlStore.Close() })
	}

	s.coordinator = index.New(engine, index.Options{
		Store:    sqlStore,
		LockPath: cfg.Index.LockPath,
	})
	return s, nil
}

// derivedCachePath gives each cache its own bolt file; bbolt holds an
// exclusive lock per file.
func derivedCachePath(path, suffix string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + suffix + ext
}

// elapsed formats a duration for terminal output.
func elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
