// Package vectorstore implements the Vector Store port: similarity search
// over chunk embeddings, backed by a pure-Go HNSW graph so the module never
// needs CGO.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/cecon-labs/codegraph/internal/chunk"
)

// Config configures the vector store's HNSW graph and embedding dimension.
type Config struct {
	// Dimensions is the embedding dimension chunks are expected to carry.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfConstruction is HNSW build-time search width.
	EfConstruction int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultConfig returns sensible defaults for the given embedding dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// Result is a single vector similarity match.
type Result struct {
	ChunkID  string
	Distance float32
	Score    float32 // normalized similarity, higher is more similar
}

// Store is the Vector Store port (component E): upsert/search/delete by
// file, vector similarity with results hydrated to full chunks.
type Store interface {
	// UpsertChunks replaces chunks by id. Chunks with no vector attached
	// (embedding failed upstream) are accepted but invisible to Search
	// until re-embedded and upserted again.
	UpsertChunks(ctx context.Context, chunks []*chunk.Chunk) error

	// Search embeds queryText internally and returns chunks in descending
	// similarity order; ties are broken by chunk id ascending.
	Search(ctx context.Context, queryText string, k int) ([]*Result, error)

	// GetChunksByIds batch-hydrates chunks previously upserted.
	GetChunksByIds(ctx context.Context, ids []string) ([]*chunk.Chunk, error)

	// DeleteChunksByFile removes all chunks belonging to path in one call.
	DeleteChunksByFile(ctx context.Context, path string) error

	// Count returns the number of chunks currently indexed.
	Count() int

	// Save persists the index to path (graph + sidecar metadata).
	Save(path string) error

	// Load restores the index from path.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates a chunk's vector does not match the
// store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex required)", e.Expected, e.Got)
}
