package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/search"
)

// searchOptions holds the CLI flags for search.
type searchOptions struct {
	topK          int
	format        string
	lexicalWeight float64
	vectorWeight  float64
	explain       bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search the indexed corpus with hybrid retrieval.

BM25 and vector rankings are fused with weighted Reciprocal Rank Fusion,
then reranked small-to-big against the original query.

Examples:
  searchfuse search "qual o prazo de entrega"
  searchfuse search "multa por atraso" --top-k 3 --format json
  searchfuse search "vigência" --lexical-weight 1 --vector-weight 0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", -1, "Override the lexical fusion weight")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", -1, "Override the vector fusion weight")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show fusion diagnostics per result")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	s, err := buildStack(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if s.cfg.Storage.Path == "" {
		return fmt.Errorf("no persistent index configured; set storage.path in .searchfuse.yaml and run 'searchfuse index' first")
	}
	if err := s.coordinator.Restore(cmd.Context()); err != nil {
		return fmt.Errorf("failed to restore index: %w", err)
	}
	if s.engine.ChunkCount() == 0 {
		return fmt.Errorf("index is empty; run 'searchfuse index' first")
	}

	retrieveOpts := search.RetrieveOptions{TopK: opts.topK}
	if opts.lexicalWeight >= 0 || opts.vectorWeight >= 0 {
		weights := search.Weights{
			Lexical: s.cfg.Search.LexicalWeight,
			Vector:  s.cfg.Search.VectorWeight,
		}
		if opts.lexicalWeight >= 0 {
			weights.Lexical = opts.lexicalWeight
		}
		if opts.vectorWeight >= 0 {
			weights.Vector = opts.vectorWeight
		}
		retrieveOpts.Weights = &weights
	}

	results, diag, err := s.engine.Retrieve(cmd.Context(), query, retrieveOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results, diag)
	default:
		return formatText(cmd, query, results, diag, opts.explain)
	}
}

func formatJSON(cmd *cobra.Command, results []search.Result, diag search.Diagnostics) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Results     []search.Result    `json:"results"`
		Diagnostics search.Diagnostics `json:"diagnostics"`
	}{Results: results, Diagnostics: diag})
}

func formatText(cmd *cobra.Command, query string, results []search.Result, diag search.Diagnostics, explain bool) error {
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.4f)\n", i+1, r.ChunkID, r.FusedScore)
		if explain {
			b := r.SourceBreakdown
			fmt.Fprintf(out, "   BM25: rank %d (%.3f) | Vector: rank %d (%.3f) | Rerank: %.3f\n",
				b.LexicalRank, b.LexicalScore, b.VectorRank, b.VectorScore, b.RerankScore)
		}
		fmt.Fprintf(out, "   %s\n\n", snippet(r.ContextText, 200))
	}

	if explain {
		fmt.Fprintf(out, "Vector backend: %s", diag.VectorBackend)
		if diag.VectorFallback {
			fmt.Fprint(out, " (fallback)")
		}
		fmt.Fprintf(out, " | Embeddings: %s", diag.EmbeddingProvider)
		if diag.EmbedderFallback {
			fmt.Fprint(out, " (fallback)")
		}
		if diag.Rewritten {
			fmt.Fprintf(out, " | Rewritten: %q", diag.RewrittenQuery)
		}
		if diag.ResponseCacheHit {
			fmt.Fprint(out, " | cached")
		}
		fmt.Fprintf(out, " | %s\n", elapsed(diag.Timings.Total))
	}

	return nil
}

// snippet truncates text for single-line terminal display.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
