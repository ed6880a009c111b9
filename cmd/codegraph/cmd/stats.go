package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph-wide file, chunk, entity, and edge counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, path)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Workspace root")

	return cmd
}

func runStats(cmd *cobra.Command, path string) error {
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

	stats, err := a.gstore.GetStats(ctx)
	if err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("get stats: %w", err))
	}

	cmd.Printf("files:    %d\n", stats.FileCount)
	cmd.Printf("chunks:   %d\n", stats.ChunkCount)
	cmd.Printf("entities: %d\n", stats.EntityCount)
	cmd.Printf("edges:\n")
	for edgeType, count := range stats.EdgeCounts {
		cmd.Printf("  %-16s %d\n", edgeType, count)
	}

	return nil
}
