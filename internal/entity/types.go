// Package entity implements the Entity Discovery & Resolver (component H):
// a pluggable per-chunk entity extractor plus the canonicalization and
// graph-linking logic that turns raw extractions into MENTIONS edges and
// deduplicated entity nodes.
package entity

import (
	"regexp"
	"strings"
)

// Type enumerates the entity kinds the resolver accepts, per §3.1. An
// extraction with any other type is dropped at resolution time.
type Type string

const (
	TypeClass      Type = "class"
	TypeFunction   Type = "function"
	TypeInterface  Type = "interface"
	TypeTypeAlias  Type = "type"
	TypeAPI        Type = "api"
	TypeLibrary    Type = "library"
	TypeFramework  Type = "framework"
	TypeConcept    Type = "concept"
	TypePattern    Type = "pattern"
	TypeTechnology Type = "technology"
	TypeService    Type = "service"
	TypeComponent  Type = "component"
	TypeModule     Type = "module"
	TypePackage    Type = "package"
	TypeTool       Type = "tool"
	TypeOther      Type = "other"
)

var validTypes = map[Type]bool{
	TypeClass: true, TypeFunction: true, TypeInterface: true, TypeTypeAlias: true,
	TypeAPI: true, TypeLibrary: true, TypeFramework: true, TypeConcept: true,
	TypePattern: true, TypeTechnology: true, TypeService: true, TypeComponent: true,
	TypeModule: true, TypePackage: true, TypeTool: true, TypeOther: true,
}

// RelationType enumerates the edge types a discovered entity-to-entity
// relationship may validate against, per §3.1's GraphEdge kinds. Anything
// else is skipped rather than linked (§4.8).
type RelationType string

const (
	RelationReferences RelationType = "REFERENCES"
	RelationLinksTo    RelationType = "LINKS_TO"
	RelationPartOf     RelationType = "PART_OF"
)

var validRelationTypes = map[RelationType]bool{
	RelationReferences: true, RelationLinksTo: true, RelationPartOf: true,
}

// ExtractedEntity is one entity surfaced by a Provider before resolution.
type ExtractedEntity struct {
	Name       string
	Type       Type
	Confidence float64
}

// EntityRelationship is a discovered edge between two extracted entities,
// referenced by name so the resolver can look up their resolved ids.
type EntityRelationship struct {
	FromName string
	FromType Type
	ToName   string
	ToType   Type
	Type     RelationType
	Confidence float64
}

// DiscoveryResult is a Provider's raw output for one chunk, before the
// confidence/cap filter and resolution step run.
type DiscoveryResult struct {
	Entities      []ExtractedEntity
	Relationships []EntityRelationship
}

// Provider discovers entities and relationships within a chunk's text. The
// default provider (LexicalProvider) is regex/keyword-based and needs no
// network access; richer providers (LLM-backed) may implement the same
// interface and plug in without touching the resolver.
type Provider interface {
	Discover(text string) (*DiscoveryResult, error)
}

// Config tunes the resolver's filter step.
type Config struct {
	ConfidenceThreshold float64
	MaxPerChunk         int
}

// DefaultConfig matches §4.8's stated defaults.
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.7, MaxPerChunk: 20}
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	collapseSpace   = regexp.MustCompile(`\s+`)
)

// Canonicalize lowercases name, strips non-alphanumerics, and collapses
// whitespace, per §4.8's normalization rule. Combined with Type this forms
// the (normalized-name, type) canonical key the resolver dedupes on.
func Canonicalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	collapsed := collapseSpace.ReplaceAllString(lower, " ")
	return strings.TrimSpace(nonAlphanumeric.ReplaceAllString(collapsed, " "))
}

// CanonicalKey returns the id-worthy (normalized-name, type) pair as a
// single deterministic string, stable across process restarts so two
// separately-processed files mentioning the same entity converge on the
// same id without a resolver-local cache.
func CanonicalKey(name string, t Type) string {
	return string(t) + ":" + Canonicalize(name)
}

// eligibleChunkTypes mirrors §4.8's "runs on chunks whose chunkType is one
// of these, or whose language is markdown/mdx" rule.
var eligibleChunkTypes = map[string]bool{
	"jsdoc":            true,
	"markdown_section": true,
	"document_section": true,
}

var eligibleLanguages = map[string]bool{
	"markdown": true,
	"mdx":      true,
}

// Eligible reports whether a chunk of the given chunkType/language is a
// candidate for entity discovery.
func Eligible(chunkType, language string) bool {
	return eligibleChunkTypes[chunkType] || eligibleLanguages[strings.ToLower(language)]
}
