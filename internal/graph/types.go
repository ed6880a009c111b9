// Package graph implements the Graph Store port (component F): a typed
// property graph of files, chunks, and entities, backed by SQLite so the
// module stays pure Go (no CGO) the same way the vector store does.
package graph

import (
	"context"
	"time"
)

// NodeKind discriminates the node shapes the graph carries.
type NodeKind string

const (
	NodeKindFile   NodeKind = "file"
	NodeKindChunk  NodeKind = "chunk"
	NodeKindEntity NodeKind = "entity"

	// NodeKindCluster marks a synthetic node produced by the Content
	// Loader's Level-of-Detail clustering (component O). It never
	// appears in persisted storage; the graph store only ever writes
	// file/chunk/entity kinds.
	NodeKindCluster NodeKind = "cluster"
)

// EdgeType enumerates the relationship types the graph can carry.
type EdgeType string

const (
	EdgeContains      EdgeType = "CONTAINS"
	EdgeDocuments     EdgeType = "DOCUMENTS"
	EdgeImports       EdgeType = "IMPORTS"
	EdgeImportsSymbol EdgeType = "IMPORTS_SYMBOL"
	EdgeReferences    EdgeType = "REFERENCES"
	EdgeMentions      EdgeType = "MENTIONS"
	EdgeDefinedIn     EdgeType = "DEFINED_IN"
	EdgeHasChunk      EdgeType = "HAS_CHUNK"
	EdgeLinksTo       EdgeType = "LINKS_TO"
	EdgePartOf        EdgeType = "PART_OF"
)

// traversableEdgeTypes is the set getRelatedChunks follows, per §4.6.
var traversableEdgeTypes = []EdgeType{
	EdgeContains, EdgeDocuments, EdgeImports, EdgeImportsSymbol,
	EdgeReferences, EdgeMentions,
}

// Node is a GraphNode: discriminated by Kind, carrying a free-form
// property map alongside its label/type.
type Node struct {
	ID         string
	Kind       NodeKind
	Label      string
	Type       string
	Properties map[string]string
	CreatedAt  time.Time
}

// Edge is a GraphEdge: typed, optionally weighted, with free-form
// properties and creation timestamp.
type Edge struct {
	From       string
	To         string
	Type       EdgeType
	Weight     float64
	HasWeight  bool
	Properties map[string]string
	CreatedAt  time.Time
}

// ChunkNode is the chunk-specific shape passed to createChunkNodes: the
// graph persists chunk metadata and, optionally, content; the vector
// store is the system of record for the embedding itself.
type ChunkNode struct {
	ID         string
	FilePath   string
	Content    string
	ChunkType  string
	SymbolName string
	SymbolKind string
	Language   string
	StartLine  int
	EndLine    int
	Order      int
	Extra      map[string]string
}

// Stats summarizes the graph for status/diagnostics commands.
type Stats struct {
	FileCount   int
	ChunkCount  int
	EntityCount int
	EdgeCounts  map[EdgeType]int
}

// SubgraphFilter narrows getSubgraph to a region of the graph, e.g. for
// Level-of-Detail visualization (component O).
type SubgraphFilter struct {
	RootIDs  []string
	Depth    int
	EdgeType EdgeType // empty means all edge types
	Limit    int
}

// Subgraph is a self-contained slice of the graph: nodes plus the edges
// between them.
type Subgraph struct {
	Nodes []*Node
	Edges []*Edge
}

// Store is the Graph Store port (component F).
type Store interface {
	// CreateFileNode upserts the file node. Called before chunk writes so
	// concurrently-processing files can resolve imports pointing here.
	CreateFileNode(ctx context.Context, path, language string, properties map[string]string) error

	// CreateChunkNodes replaces the chunk set of a file atomically:
	// existing chunks of that file absent from chunks are deleted along
	// with their incident edges.
	CreateChunkNodes(ctx context.Context, filePath string, chunks []*ChunkNode) error

	// CreateRelationships is idempotent on (from, to, type): re-insertion
	// updates properties, never duplicates.
	CreateRelationships(ctx context.Context, edges []*Edge) error

	// DeleteFile removes the file node, all its chunks, all edges
	// incident to them, and any entity that becomes dangling as a result.
	DeleteFile(ctx context.Context, path string) error

	// DeleteFileNodes removes only the file node (used by lower-level
	// cleanup paths that manage chunks separately).
	DeleteFileNodes(ctx context.Context, paths []string) error

	// ListAllFiles returns every file path currently in the graph, used
	// by the Relationship Extractor to resolve import targets.
	ListAllFiles(ctx context.Context) ([]string, error)

	// GetFileChunks returns the chunk nodes belonging to path, in order.
	GetFileChunks(ctx context.Context, filePath string) ([]*ChunkNode, error)

	// GetChunksByIds batch-hydrates chunk nodes from the graph (used when
	// the vector store doesn't have a vector for a chunk yet).
	GetChunksByIds(ctx context.Context, ids []string) ([]*ChunkNode, error)

	// LinkChunkToEntity emits a MENTIONS edge chunk->entity, creating the
	// entity node if it does not already exist.
	LinkChunkToEntity(ctx context.Context, chunkID string, entity *Node, weight float64) error

	// GetRelatedChunks does a BFS up to depth edges over the traversable
	// edge types, returning deduplicated chunk ids.
	GetRelatedChunks(ctx context.Context, ids []string, depth int) ([]string, error)

	// GetSampleRelationships returns up to limit edges, for diagnostics.
	GetSampleRelationships(ctx context.Context, limit int) ([]*Edge, error)

	// GetRelationshipsByType returns up to limit edges of the given type.
	GetRelationshipsByType(ctx context.Context, edgeType EdgeType, limit int) ([]*Edge, error)

	// GetSubgraph returns a filtered region of the graph.
	GetSubgraph(ctx context.Context, filter SubgraphFilter) (*Subgraph, error)

	// GetStats summarizes node/edge counts.
	GetStats(ctx context.Context) (*Stats, error)

	// CleanupDanglingEntities deletes entity nodes whose incoming edge
	// count has dropped to zero, returning the number removed. DeleteFile
	// runs this automatically; callers may also invoke it periodically.
	CleanupDanglingEntities(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
