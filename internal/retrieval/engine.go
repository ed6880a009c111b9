package retrieval

import (
	"context"
	"fmt"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/graph"
	"github.com/cecon-labs/codegraph/internal/vectorstore"
)

// entitySubgraphLimit bounds the BFS fan-out when enriching a response
// with entities/relationships; generous enough for any single search's
// result set, small enough to bound a pathological query.
const entitySubgraphLimit = 2000

// Engine implements hybrid search: vector top-k (or the lexical
// fallback when no vector store is configured) fused with k-hop graph
// expansion. It is stateless beyond its two store handles, per §4.13 —
// it holds no caches other than what the Content Loader (O) owns, which
// lives outside this package.
type Engine struct {
	vector vectorstore.Store // optional: nil triggers the lexical fallback
	graph  graph.Store        // optional: nil disables expansion/enrichment
}

// New creates a Retrieval Engine. vector may be nil to force the
// lexical fallback path (e.g. before embeddings are configured); g may
// be nil to disable graph expansion and entity enrichment entirely.
func New(vector vectorstore.Store, g graph.Store) *Engine {
	return &Engine{vector: vector, graph: g}
}

// Search executes the algorithm from §4.13: top-k direct matches, then
// optional graph expansion, then optional entity/relationship
// enrichment.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()
	if req.Query == "" {
		return &Response{}, nil
	}

	direct, err := e.directMatches(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("direct matches: %w", err)
	}

	resp := &Response{DirectMatches: direct}

	var relatedIDs []string
	if req.Depth > 0 && req.Mode != ModeLocal && e.graph != nil {
		directIDs := chunkIDs(direct)
		ids, err := e.graph.GetRelatedChunks(ctx, directIDs, req.Depth)
		if err != nil {
			return nil, fmt.Errorf("related chunks: %w", err)
		}
		relatedIDs = excludeIDs(ids, directIDs)

		related, err := e.hydrate(ctx, relatedIDs)
		if err != nil {
			return nil, fmt.Errorf("hydrate related chunks: %w", err)
		}
		resp.RelatedChunks = related
	}

	if req.IncludeEntities && e.graph != nil {
		allIDs := append(append([]string{}, chunkIDs(direct)...), relatedIDs...)
		entities, relationships, err := e.enrichEntities(ctx, allIDs)
		if err != nil {
			return nil, fmt.Errorf("enrich entities: %w", err)
		}
		resp.Entities = entities
		resp.Relationships = relationships
	}

	resp.Totals = Totals{
		DirectMatches: len(resp.DirectMatches),
		RelatedChunks: len(resp.RelatedChunks),
	}
	return resp, nil
}

// directMatches dispatches to vector search or the lexical fallback
// per the request's mode, per §4.13 step 1 and step 3.
func (e *Engine) directMatches(ctx context.Context, req Request) ([]*chunk.Chunk, error) {
	switch req.Mode {
	case ModeLocal:
		return e.vectorSearch(ctx, req.Query, req.K)
	case ModeGlobal:
		return e.lexicalSearch(ctx, req.Query, req.K)
	default: // ModeHybrid, ModeMix
		if e.vector != nil {
			return e.vectorSearch(ctx, req.Query, req.K)
		}
		return e.lexicalSearch(ctx, req.Query, req.K)
	}
}

// vectorSearch runs top-k vector similarity search, per §4.13 step 1.
func (e *Engine) vectorSearch(ctx context.Context, query string, k int) ([]*chunk.Chunk, error) {
	if e.vector == nil {
		return e.lexicalSearch(ctx, query, k)
	}
	results, err := e.vector.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return e.vector.GetChunksByIds(ctx, ids)
}

// lexicalSearch is the bag-of-terms fallback used when no vector store
// is configured, per §4.13 step 3: it scans every chunk the Graph Store
// knows about, scores it against the query terms, and returns the
// top-k in deterministic score-desc/id-asc order.
func (e *Engine) lexicalSearch(ctx context.Context, query string, k int) ([]*chunk.Chunk, error) {
	if e.graph == nil {
		return nil, nil
	}
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	paths, err := e.graph.ListAllFiles(ctx)
	if err != nil {
		return nil, err
	}

	var scored []lexicalResult
	nodesByID := make(map[string]*graph.ChunkNode)
	for _, path := range paths {
		nodes, err := e.graph.GetFileChunks(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			score := lexicalScore(n.Content, terms)
			if score <= 0 {
				continue
			}
			nodesByID[n.ID] = n
			scored = append(scored, lexicalResult{chunkID: n.ID, score: score})
		}
	}

	sortLexicalResults(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	out := make([]*chunk.Chunk, 0, len(scored))
	for _, s := range scored {
		out = append(out, chunkFromNode(nodesByID[s.chunkID]))
	}
	return out, nil
}

// hydrate fetches full chunk content for ids, preferring the vector
// store (system of record for the embedding) and falling back to the
// graph store when vectors are absent, per §4.13 step 2.
func (e *Engine) hydrate(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if e.vector != nil {
		chunks, err := e.vector.GetChunksByIds(ctx, ids)
		if err == nil && len(chunks) == len(ids) {
			return chunks, nil
		}
	}
	if e.graph == nil {
		return nil, nil
	}
	nodes, err := e.graph.GetChunksByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*chunk.Chunk, len(nodes))
	for i, n := range nodes {
		out[i] = chunkFromNode(n)
	}
	return out, nil
}

// enrichEntities implements §4.13 step 4: entities referenced by any
// chunk in chunkIDs, plus edges strictly between those entities.
func (e *Engine) enrichEntities(ctx context.Context, chunkIDs []string) ([]*graph.Node, []*graph.Edge, error) {
	if len(chunkIDs) == 0 {
		return nil, nil, nil
	}

	mentions, err := e.graph.GetSubgraph(ctx, graph.SubgraphFilter{
		RootIDs:  chunkIDs,
		Depth:    1,
		EdgeType: graph.EdgeMentions,
		Limit:    entitySubgraphLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	var entities []*graph.Node
	entityIDs := make([]string, 0, len(mentions.Nodes))
	entitySet := make(map[string]bool, len(mentions.Nodes))
	for _, n := range mentions.Nodes {
		if n.Kind == graph.NodeKindEntity {
			entities = append(entities, n)
			entityIDs = append(entityIDs, n.ID)
			entitySet[n.ID] = true
		}
	}
	if len(entityIDs) == 0 {
		return nil, nil, nil
	}

	between, err := e.graph.GetSubgraph(ctx, graph.SubgraphFilter{
		RootIDs: entityIDs,
		Depth:   1,
		Limit:   entitySubgraphLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	var relationships []*graph.Edge
	for _, edge := range between.Edges {
		if entitySet[edge.From] && entitySet[edge.To] {
			relationships = append(relationships, edge)
		}
	}

	return entities, relationships, nil
}

// chunkFromNode adapts a graph ChunkNode (the Graph Store's hydration
// shape) to the Vector Store's chunk.Chunk shape so callers get one
// result type regardless of which store answered.
func chunkFromNode(n *graph.ChunkNode) *chunk.Chunk {
	if n == nil {
		return nil
	}
	return &chunk.Chunk{
		ID:         n.ID,
		FilePath:   n.FilePath,
		Content:    n.Content,
		ChunkType:  chunk.ChunkType(n.ChunkType),
		SymbolName: n.SymbolName,
		SymbolKind: chunk.SymbolKind(n.SymbolKind),
		Language:   n.Language,
		StartLine:  n.StartLine,
		EndLine:    n.EndLine,
		Extra:      n.Extra,
	}
}

// chunkIDs extracts ids from a chunk slice in order.
func chunkIDs(chunks []*chunk.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

// excludeIDs returns ids minus any id present in exclude, preserving
// order.
func excludeIDs(ids []string, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
