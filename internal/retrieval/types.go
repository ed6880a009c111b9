// Package retrieval implements the Retrieval Engine port (component N):
// hybrid search over the Vector Store and Graph Store, fusing vector
// top-k with k-hop graph expansion the way the teacher's search.Engine
// fuses BM25 and vector results, but over chunk similarity plus graph
// reachability instead of two lexical/semantic ranked lists.
package retrieval

import (
	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/graph"
)

// Mode selects which sources a Search draws direct matches from.
type Mode string

const (
	// ModeLocal restricts direct matches to vector similarity only; no
	// graph expansion is performed regardless of Request.Depth.
	ModeLocal Mode = "local"
	// ModeGlobal restricts direct matches to the lexical fallback
	// scanner, then expands through the graph; used to surface results
	// independent of embedding quality.
	ModeGlobal Mode = "global"
	// ModeHybrid runs the full algorithm: vector top-k (or lexical
	// fallback when no vector store is configured) plus graph expansion.
	ModeHybrid Mode = "hybrid"
	// ModeMix is an alias for ModeHybrid; the spec's external interface
	// lists both names without distinguishing their semantics.
	ModeMix Mode = "mix"
)

// DefaultK is the default vector/lexical top-k, per §4.13.
const DefaultK = 10

// Request is one search call's parameters.
type Request struct {
	Query string
	Mode  Mode
	// K is the direct-match fan-out; 0 uses DefaultK.
	K int
	// Depth is the graph expansion depth; 0 disables expansion.
	Depth int
	// IncludeEntities requests entity/relationship enrichment.
	IncludeEntities bool
}

// Totals summarizes result counts for the response, per §6's external
// search response shape.
type Totals struct {
	DirectMatches int
	RelatedChunks int
}

// Response is the Retrieval Engine's search result, matching §6's
// `{directMatches, relatedChunks, entities?, relationships?,
// processingMillis, totals}` external shape.
type Response struct {
	DirectMatches    []*chunk.Chunk
	RelatedChunks    []*chunk.Chunk
	Entities         []*graph.Node
	Relationships    []*graph.Edge
	ProcessingMillis int64
	Totals           Totals
}

func (r Request) withDefaults() Request {
	if r.K <= 0 {
		r.K = DefaultK
	}
	if r.Mode == "" {
		r.Mode = ModeHybrid
	}
	return r
}
