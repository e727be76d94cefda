package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/watcher"
)

func newIndexCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "index <chunks.json>",
		Short: "Build the search index from a chunks document",
		Long: `Build a new index generation from a chunks document and swap it in.

The chunks document is a JSON file of the form:
  {"chunks": [{"id": "c1", "ordinal": 0, "text": "...", "parent_id": "p1"}, ...]}

With --watch the command keeps running and rebuilds the index every time
the document changes, after a debounce window.

Examples:
  searchfuse index ./chunks.json
  searchfuse index ./chunks.json --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], watch)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reindex automatically when the document changes")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, watch bool) error {
	s, err := buildStack(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()

	start := time.Now()
	generation, err := s.coordinator.ReindexFile(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(out, "Indexed %d chunks in %s (generation %s)\n",
		s.engine.ChunkCount(), elapsed(time.Since(start)), generation)

	if !watch {
		return nil
	}

	w, err := watcher.New(path, s.cfg.Index.WatchDebounce, func(ctx context.Context, p string) error {
		reloadStart := time.Now()
		gen, err := s.coordinator.ReindexFile(ctx, p)
		if err != nil {
			fmt.Fprintf(out, "Reindex failed: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "Reindexed %d chunks in %s (generation %s)\n",
			s.engine.ChunkCount(), elapsed(time.Since(reloadStart)), gen)
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Watching %s for changes (Ctrl-C to stop)\n", path)
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
