package entity

import (
	"context"
	"sort"

	cgerrors "github.com/cecon-labs/codegraph/internal/errors"
	"github.com/cecon-labs/codegraph/internal/graph"
)

// GraphLinker is the write slice of the Graph Store the resolver needs:
// entity linking and relationship emission. Kept narrow, in the style of
// internal/relate's GraphReader, so the resolver stays testable with a fake.
type GraphLinker interface {
	LinkChunkToEntity(ctx context.Context, chunkID string, entity *graph.Node, weight float64) error
	CreateRelationships(ctx context.Context, edges []*graph.Edge) error
}

// Resolver is the Entity Discovery & Resolver (component H): it runs a
// Provider over eligible chunks, filters by confidence/cap, canonicalizes
// names into stable ids, and links the results into the Graph Store. It is
// the only component permitted to coin new graph ids at runtime (§4.8).
type Resolver struct {
	provider Provider
	graph    GraphLinker
	config   Config
}

// NewResolver constructs a Resolver. A nil provider defaults to
// NewLexicalProvider(), and a zero Config defaults to DefaultConfig().
func NewResolver(provider Provider, linker GraphLinker, cfg Config) *Resolver {
	if provider == nil {
		provider = NewLexicalProvider()
	}
	if cfg.ConfidenceThreshold == 0 && cfg.MaxPerChunk == 0 {
		cfg = DefaultConfig()
	}
	return &Resolver{provider: provider, graph: linker, config: cfg}
}

// ProcessChunk runs discovery, filtering, and linking for one chunk.
// Ineligible chunks (per Eligible) are a no-op returning (0, nil). A
// discovery error is reported as a non-fatal EntityExtractionError: the
// orchestrator skips this chunk's entities and continues with the file.
func (r *Resolver) ProcessChunk(ctx context.Context, chunkID, chunkType, language, text string) (int, error) {
	if !Eligible(chunkType, language) {
		return 0, nil
	}

	discovery, err := r.provider.Discover(text)
	if err != nil {
		return 0, cgerrors.ValidationError(cgerrors.ErrEntityExtraction, "entity discovery failed: "+err.Error())
	}

	filtered := filterEntities(discovery.Entities, r.config)
	resolvedIDs := make(map[string]string, len(filtered)) // canonical key -> entity id

	linked := 0
	for _, e := range filtered {
		if !validTypes[e.Type] {
			continue
		}
		key := CanonicalKey(e.Name, e.Type)
		id := "entity:" + key
		resolvedIDs[key] = id

		node := &graph.Node{
			ID:    id,
			Kind:  graph.NodeKindEntity,
			Label: e.Name,
			Type:  string(e.Type),
		}
		if err := r.graph.LinkChunkToEntity(ctx, chunkID, node, e.Confidence); err != nil {
			return linked, err
		}
		linked++
	}

	var relEdges []*graph.Edge
	for _, rel := range discovery.Relationships {
		if !validRelationTypes[rel.Type] {
			continue
		}
		fromID, fromOK := resolvedIDs[CanonicalKey(rel.FromName, rel.FromType)]
		toID, toOK := resolvedIDs[CanonicalKey(rel.ToName, rel.ToType)]
		if !fromOK || !toOK {
			continue // one or both endpoints didn't survive the filter; skip per §4.8
		}
		relEdges = append(relEdges, &graph.Edge{
			From:      fromID,
			To:        toID,
			Type:      graph.EdgeType(rel.Type),
			Weight:    rel.Confidence,
			HasWeight: true,
		})
	}
	if len(relEdges) > 0 {
		if err := r.graph.CreateRelationships(ctx, relEdges); err != nil {
			return linked, err
		}
	}

	return linked, nil
}

// filterEntities drops entities below cfg.ConfidenceThreshold, then keeps
// at most cfg.MaxPerChunk, highest confidence first.
func filterEntities(entities []ExtractedEntity, cfg Config) []ExtractedEntity {
	kept := make([]ExtractedEntity, 0, len(entities))
	for _, e := range entities {
		if e.Confidence >= cfg.ConfidenceThreshold {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	if cfg.MaxPerChunk > 0 && len(kept) > cfg.MaxPerChunk {
		kept = kept[:cfg.MaxPerChunk]
	}
	return kept
}
