package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cecon-labs/codegraph/internal/metadata"
	"github.com/cecon-labs/codegraph/internal/worker"
)

func newIndexCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Scan a workspace and build its knowledge graph",
		Long: `index walks the workspace once, enqueues every discovered file, and
runs the Worker Pool until the queue drains, then reports how many files
were indexed and how many failed after exhausting retries.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd, path, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama)")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := resolveWorkspaceRoot(path)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, root, offline)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.metadata.ResetInFlightToPending(ctx); err != nil {
		slog.Warn("failed to reset in-flight files", slog.String("error", err.Error()))
	}

	results, err := a.scan(ctx)
	if err != nil {
		return withExitCode(ExitStoreInitFailed, err)
	}

	enqueued := 0
	for res := range results {
		if res.Error != nil {
			slog.Warn("scan error", slog.String("error", res.Error.Error()))
			continue
		}
		loaded, err := a.content.Load(ctx, res.File.Path, "")
		if err != nil {
			slog.Warn("failed to read scanned file", slog.String("path", res.File.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := a.queue.Enqueue(ctx, res.File.Path, loaded.Hash); err != nil {
			slog.Warn("failed to enqueue file", slog.String("path", res.File.Path), slog.String("error", err.Error()))
			continue
		}
		enqueued++
	}

	cmd.Printf("Enqueued %d files from %s\n", enqueued, root)

	pool := worker.New(a.queue, a.orch)
	pool.Start(ctx)

	if err := waitForDrain(ctx, a.metadata); err != nil {
		pool.Stop()
		return withExitCode(ExitStoreInitFailed, err)
	}
	pool.Stop()

	failed, err := a.metadata.ListByStatus(ctx, metadata.StatusFailed)
	if err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("list failed files: %w", err))
	}
	completed, err := a.metadata.ListByStatus(ctx, metadata.StatusCompleted)
	if err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("list completed files: %w", err))
	}

	cmd.Printf("Indexed %d files, %d failed\n", len(completed), len(failed))
	for _, f := range failed {
		cmd.Printf("  FAILED %s: %s\n", f.Path, f.ErrorMessage)
	}

	if len(failed) > 0 {
		return withExitCode(ExitPartialFailure, fmt.Errorf("%d file(s) failed to index", len(failed)))
	}
	return nil
}

// waitForDrain polls the metadata store until no file is pending or
// processing, or ctx is cancelled.
func waitForDrain(ctx context.Context, store metadata.Store) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pending, err := store.ListByStatus(ctx, metadata.StatusPending)
			if err != nil {
				return fmt.Errorf("list pending files: %w", err)
			}
			processing, err := store.ListByStatus(ctx, metadata.StatusProcessing)
			if err != nil {
				return fmt.Errorf("list processing files: %w", err)
			}
			if len(pending) == 0 && len(processing) == 0 {
				return nil
			}
		}
	}
}
