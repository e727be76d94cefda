package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/config"
	"github.com/searchfuse/searchfuse/internal/embed"
	"github.com/searchfuse/searchfuse/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and index status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Fusion: lexical %.2f / vector %.2f, k=%d\n",
		cfg.Search.LexicalWeight, cfg.Search.VectorWeight, cfg.Search.RRFConstant)
	fmt.Fprintf(out, "BM25: k1=%.2f b=%.2f\n", cfg.Search.BM25K1, cfg.Search.BM25B)
	fmt.Fprintf(out, "Vector backend: %s\n", cfg.Vector.Backend)
	fmt.Fprintf(out, "Cache backend: %s\n", cfg.Cache.Backend)

	embedder, fallback := embed.NewEmbedder(cmd.Context(), embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Timeout:    cfg.Embeddings.Timeout,
	})
	defer func() { _ = embedder.Close() }()

	fmt.Fprintf(out, "Embeddings: %s", embedder.ModelName())
	if fallback {
		fmt.Fprint(out, " (fallback: configured provider unreachable)")
	}
	fmt.Fprintln(out)

	if cfg.Rewrite.Enabled {
		fmt.Fprintf(out, "Rewrite: %s (timeout %s)\n", cfg.Rewrite.Model, cfg.Rewrite.Timeout)
	} else {
		fmt.Fprintln(out, "Rewrite: disabled")
	}

	if cfg.Storage.Path == "" {
		fmt.Fprintln(out, "Storage: none (index is not persisted)")
		return nil
	}

	sqlStore, err := store.OpenSQLiteStore(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(out, "Storage: %s (unreadable: %v)\n", cfg.Storage.Path, err)
		return nil
	}
	defer func() { _ = sqlStore.Close() }()

	chunks, err := sqlStore.LoadChunks(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "Storage: %s (unreadable: %v)\n", cfg.Storage.Path, err)
		return nil
	}
	generation, _ := sqlStore.GetState(cmd.Context(), "last_generation")

	fmt.Fprintf(out, "Storage: %s (%d chunks", cfg.Storage.Path, len(chunks))
	if generation != "" {
		fmt.Fprintf(out, ", generation %s", generation)
	}
	fmt.Fprintln(out, ")")
	return nil
}
