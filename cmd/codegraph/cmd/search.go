package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cecon-labs/codegraph/internal/loader"
	"github.com/cecon-labs/codegraph/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var (
		mode            string
		k               int
		depth           int
		includeEntities bool
		path            string
		expandLines     int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against the workspace's knowledge graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, path, args[0], mode, k, depth, includeEntities, expandLines)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Workspace root")
	cmd.Flags().StringVar(&mode, "mode", string(retrieval.ModeHybrid), "Search mode: local|global|hybrid|mix")
	cmd.Flags().IntVar(&k, "k", retrieval.DefaultK, "Direct-match fan-out")
	cmd.Flags().IntVar(&depth, "depth", 1, "Graph expansion depth")
	cmd.Flags().BoolVar(&includeEntities, "entities", false, "Include entity/relationship enrichment")
	cmd.Flags().IntVar(&expandLines, "expand", 0, "Lines of surrounding context to load around each match (0 disables)")

	return cmd
}

func runSearch(cmd *cobra.Command, path, query, mode string, k, depth int, includeEntities bool, expandLines int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := resolveWorkspaceRoot(path)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, root, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.engine.Search(ctx, retrieval.Request{
		Query:           query,
		Mode:            retrieval.Mode(mode),
		K:               k,
		Depth:           depth,
		IncludeEntities: includeEntities,
	})
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("search: %w", err))
	}

	cmd.Printf("Direct matches (%d):\n", resp.Totals.DirectMatches)
	for _, c := range resp.DirectMatches {
		cmd.Printf("  %s:%d-%d  %s\n", c.FilePath, c.StartLine, c.EndLine, firstLine(c.Content))
		printExpanded(cmd, a, c.FilePath, c.StartLine, c.EndLine, expandLines)
	}

	cmd.Printf("Related chunks (%d):\n", resp.Totals.RelatedChunks)
	for _, c := range resp.RelatedChunks {
		cmd.Printf("  %s:%d-%d  %s\n", c.FilePath, c.StartLine, c.EndLine, firstLine(c.Content))
		printExpanded(cmd, a, c.FilePath, c.StartLine, c.EndLine, expandLines)
	}

	if includeEntities {
		cmd.Printf("Entities (%d):\n", len(resp.Entities))
		for _, e := range resp.Entities {
			cmd.Printf("  %s (%s)\n", e.Label, e.Type)
		}
	}

	cmd.Printf("processingMillis=%d\n", resp.ProcessingMillis)
	return nil
}

// printExpanded prints expandLines of context around [start, end] for path,
// loaded through the app's snippet cache, when expandLines > 0.
func printExpanded(cmd *cobra.Command, a *app, path string, start, end, expandLines int) {
	if expandLines <= 0 || a.loader == nil {
		return
	}
	ref := loader.ChunkRef{
		Path:      path,
		LineStart: start - expandLines,
		LineEnd:   end + expandLines,
	}
	snippet, err := a.loader.LoadSnippet(context.Background(), ref)
	if err != nil {
		return
	}
	cmd.Printf("    ---\n")
	for _, line := range splitLines(snippet) {
		cmd.Printf("    %s\n", line)
	}
	cmd.Printf("    ---\n")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
