package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cecon-labs/codegraph/internal/metadata"
	"github.com/cecon-labs/codegraph/internal/retrieval"
	"github.com/cecon-labs/codegraph/internal/watcher"
	"github.com/cecon-labs/codegraph/internal/worker"
)

func newWatchCmd() *cobra.Command {
	var offline bool
	var addr string

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Scan, then keep the graph current and serve search requests",
		Long: `watch does a one-shot scan like index, then keeps the Worker Pool
running against a live file watcher so the graph stays current as files
change, and serves search requests over a local HTTP endpoint until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runWatch(cmd, path, offline, addr)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7787", "Address to serve search requests on")

	return cmd
}

func runWatch(cmd *cobra.Command, path string, offline bool, addr string) error {
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

	if err := scanAndEnqueue(ctx, a); err != nil {
		return withExitCode(ExitStoreInitFailed, err)
	}

	pool := worker.New(a.queue, a.orch)
	pool.Start(ctx)
	defer pool.Stop()

	hw, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("create watcher: %w", err))
	}
	if err := hw.Start(ctx, root); err != nil {
		return withExitCode(ExitStoreInitFailed, fmt.Errorf("start watcher: %w", err))
	}
	defer func() { _ = hw.Stop() }()

	go watchEvents(ctx, a, hw)

	srv := newSearchServer(addr, a.engine)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("search server stopped", slog.String("error", err.Error()))
		}
	}()
	cmd.Printf("Watching %s, serving search on http://%s/search\n", root, addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}

// scanAndEnqueue performs the one-shot scan step watch shares with index.
func scanAndEnqueue(ctx context.Context, a *app) error {
	results, err := a.scan(ctx)
	if err != nil {
		return err
	}
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
		}
	}
	return nil
}

// watchEvents translates watcher file events into queue enqueue/remove
// calls for as long as ctx is alive.
func watchEvents(ctx context.Context, a *app, hw *watcher.HybridWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-hw.Events():
			if !ok {
				return
			}
			for _, ev := range events {
				handleFileEvent(ctx, a, ev)
			}
		case err, ok := <-hw.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func handleFileEvent(ctx context.Context, a *app, ev watcher.FileEvent) {
	relPath := ev.Path
	if ev.IsDir {
		return
	}

	if a.loader != nil {
		a.loader.InvalidateFile(relPath)
	}

	if ev.Operation == watcher.OpDelete {
		fileID := metadata.GenerateFileID(relPath)
		if err := a.queue.Remove(ctx, fileID); err != nil {
			slog.Warn("failed to remove deleted file", slog.String("path", relPath), slog.String("error", err.Error()))
		}
		if err := a.gstore.DeleteFile(ctx, relPath); err != nil {
			slog.Warn("failed to delete graph file", slog.String("path", relPath), slog.String("error", err.Error()))
		}
		return
	}

	loaded, err := a.content.Load(ctx, relPath, "")
	if err != nil {
		slog.Warn("failed to read changed file", slog.String("path", relPath), slog.String("error", err.Error()))
		return
	}
	if _, err := a.queue.Enqueue(ctx, relPath, loaded.Hash); err != nil {
		slog.Warn("failed to enqueue changed file", slog.String("path", relPath), slog.String("error", err.Error()))
	}
}

// searchRequestBody mirrors the Search request/response external
// interface's request shape.
type searchRequestBody struct {
	Query           string `json:"query"`
	Mode            string `json:"mode"`
	K               int    `json:"k"`
	Depth           int    `json:"depth"`
	IncludeEntities bool   `json:"includeEntities"`
}

func newSearchServer(addr string, engine *retrieval.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body searchRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		resp, err := engine.Search(r.Context(), retrieval.Request{
			Query:           body.Query,
			Mode:            retrieval.Mode(body.Mode),
			K:               body.K,
			Depth:           body.Depth,
			IncludeEntities: body.IncludeEntities,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

