package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cecon-labs/codegraph/internal/metadata"
)

func newStatusCmd() *cobra.Command {
	var path string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, path, limit)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Workspace root")
	cmd.Flags().IntVar(&limit, "limit", metadata.DefaultListLimit, "Maximum number of files to list")

	return cmd
}

func runStatus(cmd *cobra.Command, path string, limit int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := resolveWorkspaceRoot(path)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, root, true)
	if err != nil {
		return err
	}
	defer a.Close()

	records, total, err := a.metadata.List(ctx, metadata.ListOptions{
		Page:      1,
		Limit:     limit,
		SortBy:    "enqueuedAt",
		SortOrder: "desc",
	})
	if err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("list files: %w", err))
	}

	cmd.Printf("%d files tracked (showing %d):\n", total, len(records))
	for _, r := range records {
		cmd.Printf("  [%s] %3d%%  %-40s  chunks=%d nodes=%d edges=%d", r.Status, r.Progress, r.Path, r.ChunksCount, r.NodesCount, r.RelationshipsCount)
		if r.ErrorMessage != "" {
			cmd.Printf("  error=%q", r.ErrorMessage)
		}
		cmd.Printf("\n")
	}

	return nil
}
