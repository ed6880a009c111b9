// Package orchestrator implements the Indexing Orchestrator (component I):
// the per-file pipeline that turns one file into chunks, embeddings, and
// graph writes, in the fixed monotonic-progress sequence §4.9 mandates.
package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/content"
	"github.com/cecon-labs/codegraph/internal/embed"
	cgerrors "github.com/cecon-labs/codegraph/internal/errors"
	"github.com/cecon-labs/codegraph/internal/entity"
	"github.com/cecon-labs/codegraph/internal/graph"
	"github.com/cecon-labs/codegraph/internal/relate"
	"github.com/cecon-labs/codegraph/internal/vectorstore"
)

// ProgressSink receives monotonically increasing percentage updates as a
// file moves through the pipeline, per §4.9's step list. Implementations
// must tolerate being called from a single goroutine per ProcessFile call
// (the Orchestrator never calls a sink concurrently for the same file).
type ProgressSink interface {
	OnProgress(pct int, step string)
}

// NoopProgressSink discards progress updates.
type NoopProgressSink struct{}

// OnProgress implements ProgressSink.
func (NoopProgressSink) OnProgress(int, string) {}

// ProcessingResult is what ProcessFile returns on success, per §4.9.
type ProcessingResult struct {
	ChunksCount        int
	NodesCount         int
	RelationshipsCount int
	DurationMillis     int64
}

// Config configures an Orchestrator's optional stages.
type Config struct {
	// MaxFileSize is stored on the Orchestrator but ProcessFile does not
	// read it: no size limit is applied in this pipeline, whatever its
	// value (the Content Store's own limits still apply upstream).
	MaxFileSize int64
}

// Orchestrator runs the twelve-step per-file indexing pipeline. A single
// instance is safe for concurrent use across different files: per §4.9, no
// global lock is held between steps 4 and 12, and convergence instead
// relies on the Graph Store's idempotent write semantics.
type Orchestrator struct {
	content     *content.Store
	codeChunker chunk.Chunker
	mdChunker   chunk.Chunker
	embedder    embed.Embedder      // optional; nil disables step 6
	vectors     vectorstore.Store   // optional; nil disables step 6
	gstore      graph.Store
	extractor   *relate.Extractor
	resolver    *entity.Resolver
	config      Config
}

// New constructs an Orchestrator. embedder and vectors may both be nil to
// run graph-only indexing (vector search then always returns empty).
func New(
	contentStore *content.Store,
	codeChunker, mdChunker chunk.Chunker,
	embedder embed.Embedder,
	vectors vectorstore.Store,
	gstore graph.Store,
	extractor *relate.Extractor,
	resolver *entity.Resolver,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		content:     contentStore,
		codeChunker: codeChunker,
		mdChunker:   mdChunker,
		embedder:    embedder,
		vectors:     vectors,
		gstore:      gstore,
		extractor:   extractor,
		resolver:    resolver,
		config:      cfg,
	}
}

// ProcessFile runs the full pipeline for one file. filePath is the
// workspace-relative identity used across all stores; inlinePayload, when
// non-empty, is a base64 upload payload the Content Store decodes instead
// of reading from disk.
func (o *Orchestrator) ProcessFile(ctx context.Context, filePath, inlinePayload string, sink ProgressSink) (*ProcessingResult, error) {
	if sink == nil {
		sink = NoopProgressSink{}
	}
	start := time.Now()

	// 5% Load via A.
	loaded, err := o.content.Load(ctx, filePath, inlinePayload)
	if err != nil {
		return nil, err
	}
	sink.OnProgress(5, "load")

	// 10% Hash (already computed by the Content Store's Load).
	_ = loaded.Hash
	sink.OnProgress(10, "hash")

	// 30% Parse via B. If empty, synthesize fallback chunk.
	chunks, err := o.parse(ctx, filePath, loaded)
	if err != nil {
		slog.Warn("parse failed, proceeding with empty chunk list",
			slog.String("path", filePath), slog.String("error", err.Error()))
		chunks = nil
	}
	if len(chunks) == 0 {
		chunks = []*chunk.Chunk{fallbackChunk(filePath, loaded)}
	}
	sink.OnProgress(30, "parse")

	// 50% createFileNode on F, BEFORE chunk writes.
	if err := o.gstore.CreateFileNode(ctx, filePath, loaded.Language, nil); err != nil {
		return nil, cgerrors.New(cgerrors.ErrGraphStore, "create file node failed", err)
	}
	sink.OnProgress(50, "create_file_node")

	// 55% createChunkNodes on F.
	chunkNodes := toChunkNodes(filePath, chunks)
	if err := o.gstore.CreateChunkNodes(ctx, filePath, chunkNodes); err != nil {
		return nil, cgerrors.New(cgerrors.ErrGraphStore, "create chunk nodes failed", err)
	}
	sink.OnProgress(55, "create_chunk_nodes")

	// 60% Embed + upsert to E. Non-fatal on failure.
	if o.embedder != nil && o.vectors != nil {
		if err := o.embedAndUpsert(ctx, chunks); err != nil {
			slog.Warn("embedding or vector upsert failed, continuing without vectors",
				slog.String("path", filePath), slog.String("error", err.Error()))
		}
	}
	sink.OnProgress(60, "embed")

	// 65%/70%/75% Run G over (path, content, chunks): emits CONTAINS
	// (order=i), DOCUMENTS (jsdoc<->code pairing), and for TS/JS source,
	// IMPORTS/IMPORTS_SYMBOL edges resolved against the graph's current
	// listAllFiles(). The three progress points mark sub-phases of one
	// extraction pass rather than three separate graph round-trips.
	var relationshipsCount int
	sink.OnProgress(65, "contains_edges")
	if o.extractor != nil {
		edges, err := o.extractor.Extract(ctx, o.gstore, &relate.Input{
			AbsolutePath: loaded.AbsolutePath,
			FilePath:     filePath,
			Content:      loaded.Content,
			Language:     loaded.Language,
			Chunks:       chunks,
		})
		sink.OnProgress(70, "documents_edges")
		if err != nil {
			slog.Warn("relationship extraction failed", slog.String("path", filePath), slog.String("error", err.Error()))
		} else if len(edges) > 0 {
			if err := o.gstore.CreateRelationships(ctx, edges); err != nil {
				return nil, cgerrors.New(cgerrors.ErrGraphStore, "create relationships failed", err)
			}
			relationshipsCount = len(edges)
		}
	} else {
		sink.OnProgress(70, "documents_edges")
	}
	sink.OnProgress(75, "relationship_extraction")

	// 85% Run H over eligible chunks; emit MENTIONS and resolved entity relationships.
	var mentionsCount int
	if o.resolver != nil {
		for _, c := range chunks {
			n, err := o.resolver.ProcessChunk(ctx, c.ID, string(c.ChunkType), c.Language, c.Content)
			if err != nil {
				slog.Warn("entity extraction failed for chunk, skipping",
					slog.String("chunk_id", c.ID), slog.String("error", err.Error()))
				continue
			}
			mentionsCount += n
		}
	}
	sink.OnProgress(85, "entity_resolution")

	// 95% Incrementally resolve this file's imports (subsumed by step 9's
	// extractor.Extract, which already queries ListAllFiles against the
	// graph state as of step 75; unresolved targets are retried when they
	// or this file are next processed, per §4.9).
	sink.OnProgress(95, "import_resolution")

	// 100% Mark completed (left to the caller's Metadata DB integration;
	// the Orchestrator itself has no dependency on J, so it won't block
	// file processing wins if J isn't wired for a given caller).
	sink.OnProgress(100, "completed")

	return &ProcessingResult{
		ChunksCount:        len(chunks),
		NodesCount:         len(chunks) + 1, // chunks + the file node
		RelationshipsCount: relationshipsCount + mentionsCount,
		DurationMillis:     time.Since(start).Milliseconds(),
	}, nil
}

// DeleteFile removes a file and everything derived from it from the graph
// and vector stores. Vector-store failures are logged, not propagated: the
// graph is the system of record for "does this file still exist".
func (o *Orchestrator) DeleteFile(ctx context.Context, filePath string) error {
	if o.vectors != nil {
		if err := o.vectors.DeleteChunksByFile(ctx, filePath); err != nil {
			slog.Warn("vector store delete failed", slog.String("path", filePath), slog.String("error", err.Error()))
		}
	}
	if err := o.gstore.DeleteFile(ctx, filePath); err != nil {
		return cgerrors.New(cgerrors.ErrGraphStore, "delete file failed", err)
	}
	return nil
}

func (o *Orchestrator) parse(ctx context.Context, filePath string, loaded *content.Loaded) ([]*chunk.Chunk, error) {
	chunker := o.chunkerFor(loaded.Language)
	if chunker == nil {
		return nil, nil
	}
	return chunker.Chunk(ctx, &chunk.FileInput{Path: filePath, Content: loaded.Content, Language: loaded.Language})
}

func (o *Orchestrator) chunkerFor(language string) chunk.Chunker {
	if language == "markdown" {
		return o.mdChunker
	}
	if language == "plaintext" || language == "json" || language == "yaml" || language == "css" || language == "scss" || language == "sql" {
		return nil
	}
	return o.codeChunker
}

func (o *Orchestrator) embedAndUpsert(ctx context.Context, chunks []*chunk.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return cgerrors.New(cgerrors.ErrEmbedFailed, "embedding failed", err)
	}
	for i, c := range chunks {
		if i < len(vectors) {
			c.Vector = vectors[i]
		}
	}
	if err := o.vectors.UpsertChunks(ctx, chunks); err != nil {
		return cgerrors.New(cgerrors.ErrVectorStore, "vector upsert failed", err)
	}
	return nil
}

// fallbackChunk synthesizes the whole-file chunk §4.2 mandates when a
// supported parser produced zero chunks.
func fallbackChunk(filePath string, loaded *content.Loaded) *chunk.Chunk {
	lineCount := strings.Count(string(loaded.Content), "\n") + 1
	base := filepath.Base(filePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return &chunk.Chunk{
		ID:         chunk.GenerateChunkID(filePath, 1, lineCount),
		FilePath:   filePath,
		Content:    string(loaded.Content),
		ChunkType:  chunk.ChunkTypeCode,
		SymbolName: name,
		SymbolKind: chunk.SymbolKindVariable,
		Language:   loaded.Language,
		StartLine:  1,
		EndLine:    lineCount,
	}
}

func toChunkNodes(filePath string, chunks []*chunk.Chunk) []*graph.ChunkNode {
	nodes := make([]*graph.ChunkNode, len(chunks))
	for i, c := range chunks {
		nodes[i] = &graph.ChunkNode{
			ID:         c.ID,
			FilePath:   filePath,
			Content:    c.Content,
			ChunkType:  string(c.ChunkType),
			SymbolName: c.SymbolName,
			SymbolKind: string(c.SymbolKind),
			Language:   c.Language,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Order:      i,
		}
	}
	return nodes
}

