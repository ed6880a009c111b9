package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/config"
	"github.com/cecon-labs/codegraph/internal/content"
	"github.com/cecon-labs/codegraph/internal/embed"
	"github.com/cecon-labs/codegraph/internal/entity"
	"github.com/cecon-labs/codegraph/internal/graph"
	"github.com/cecon-labs/codegraph/internal/lifecycle"
	"github.com/cecon-labs/codegraph/internal/loader"
	"github.com/cecon-labs/codegraph/internal/metadata"
	"github.com/cecon-labs/codegraph/internal/orchestrator"
	"github.com/cecon-labs/codegraph/internal/queue"
	"github.com/cecon-labs/codegraph/internal/relate"
	"github.com/cecon-labs/codegraph/internal/retrieval"
	"github.com/cecon-labs/codegraph/internal/scanner"
	"github.com/cecon-labs/codegraph/internal/vectorstore"
)

// dataDirName is the per-workspace directory holding codegraph's own
// databases, mirroring the teacher's ".amanmcp" convention.
const dataDirName = ".codegraph"

// app bundles the constructed pipeline a command needs. Fields left nil
// (embedder, vectors) mean vector search degrades to the lexical fallback,
// per the Retrieval Engine's documented behavior.
type app struct {
	root      string
	dataDir   string
	cfg       *config.Config
	metadata  metadata.Store
	gstore    graph.Store
	vectors   vectorstore.Store
	embedder  embed.Embedder
	queue     *queue.Queue
	orch      *orchestrator.Orchestrator
	engine    *retrieval.Engine
	extractor *relate.Extractor
	content   *content.Store
	loader    *loader.Loader
}

// resolveWorkspaceRoot finds the project root starting from dir, or returns
// an ExitWorkspaceNotFound error if neither a root marker nor the directory
// itself exists.
func resolveWorkspaceRoot(dir string) (string, error) {
	if _, err := os.Stat(dir); err != nil {
		return "", withExitCode(ExitWorkspaceNotFound, fmt.Errorf("workspace root %q does not exist", dir))
	}
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		root = dir
	}
	return root, nil
}

// loadConfig loads the layered configuration for root, or returns an
// ExitConfigError on malformed project/user configuration.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, withExitCode(ExitConfigError, fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(ExitConfigError, fmt.Errorf("invalid config: %w", err))
	}
	return cfg, nil
}

// buildApp wires the full indexing/retrieval pipeline for root. offline
// forces the static embedder, skipping any model download or Ollama
// lifecycle management.
func buildApp(ctx context.Context, root string, offline bool) (*app, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, withExitCode(ExitStoreInitFailed, fmt.Errorf("create data dir: %w", err))
	}

	metaPath := filepath.Join(dataDir, "metadata.db")
	metaStore, err := metadata.NewSQLiteStore(metaPath)
	if err != nil {
		return nil, withExitCode(ExitStoreInitFailed, fmt.Errorf("open metadata store: %w", err))
	}

	graphPath := cfg.Databases.Graph.Path
	if graphPath == "" {
		graphPath = filepath.Join(dataDir, "graph.db")
	} else if !filepath.IsAbs(graphPath) {
		graphPath = filepath.Join(root, graphPath)
	}
	gstore, err := graph.NewSQLiteStore(graphPath)
	if err != nil {
		_ = metaStore.Close()
		return nil, withExitCode(ExitStoreInitFailed, fmt.Errorf("open graph store: %w", err))
	}

	provider := embed.ProviderOllama
	if offline {
		provider = embed.ProviderStatic
	}

	var embedder embed.Embedder
	var vectors vectorstore.Store
	if provider != embed.ProviderStatic {
		mgr := lifecycle.NewOllamaManager()
		if err := mgr.EnsureReady(ctx, cfg.Embeddings.Model, lifecycle.DefaultEnsureOpts()); err != nil {
			// Ollama unavailable: degrade to the static embedder rather
			// than failing the whole run.
			provider = embed.ProviderStatic
		}
	}

	embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		embedder = nil
	}
	if embedder != nil {
		dimensions := cfg.Embeddings.Dimensions
		if dimensions <= 0 {
			dimensions = embedder.Dimensions()
		}
		vsCfg := vectorstore.DefaultConfig(dimensions)
		vectors, err = vectorstore.NewHNSWStore(vsCfg, embedder)
		if err != nil {
			vectors = nil
		}
	}

	contentStore := content.New(root)
	codeChunker := chunk.NewCodeChunker()
	mdChunker := chunk.NewMarkdownChunker()
	extractor := relate.NewExtractor()
	resolver := entity.NewResolver(entity.NewLexicalProvider(), gstore, entity.DefaultConfig())

	orch := orchestrator.New(contentStore, codeChunker, mdChunker, embedder, vectors, gstore, extractor, resolver, orchestrator.Config{})

	qCfg := queue.Config{
		Concurrency:      cfg.Queue.Concurrency,
		MaxRetries:       cfg.Queue.MaxRetries,
		RetryDelayMillis: int64(cfg.Queue.RetryDelayMillis),
		AutoStart:        true,
	}
	q := queue.New(metaStore, qCfg)

	engine := retrieval.New(vectors, gstore)

	snippetLoader, err := loader.New(root, loader.DefaultCacheCapacity)
	if err != nil {
		_ = gstore.Close()
		_ = metaStore.Close()
		return nil, withExitCode(ExitStoreInitFailed, fmt.Errorf("create snippet loader: %w", err))
	}

	return &app{
		root:      root,
		dataDir:   dataDir,
		cfg:       cfg,
		metadata:  metaStore,
		gstore:    gstore,
		vectors:   vectors,
		embedder:  embedder,
		queue:     q,
		orch:      orch,
		engine:    engine,
		extractor: extractor,
		content:   contentStore,
		loader:    snippetLoader,
	}, nil
}

// scan walks the workspace once using the app's configured include/exclude
// patterns.
func (a *app) scan(ctx context.Context) (<-chan scanner.ScanResult, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}
	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          a.root,
		IncludePatterns:  a.cfg.Paths.Include,
		ExcludePatterns:  a.cfg.Paths.Exclude,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return results, nil
}

// Close releases the app's store and parser handles.
func (a *app) Close() {
	if a.extractor != nil {
		_ = a.extractor.Close()
	}
	if a.gstore != nil {
		_ = a.gstore.Close()
	}
	if a.metadata != nil {
		_ = a.metadata.Close()
	}
}
