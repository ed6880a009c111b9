package entity

import (
	"regexp"
	"sort"
)

// keywordTypes maps a lowercase keyword to the entity Type it denotes when
// found in prose (jsdoc/markdown). Grounded on the shape of the teacher's
// search/synonyms.go term tables, repurposed here from "query expansion
// term -> equivalents" to "keyword -> entity type".
var keywordTypes = map[string]Type{
	// Libraries / frameworks
	"react": TypeLibrary, "vue": TypeLibrary, "angular": TypeFramework,
	"express": TypeFramework, "fastapi": TypeFramework, "django": TypeFramework,
	"flask": TypeFramework, "next.js": TypeFramework, "nextjs": TypeFramework,
	"svelte": TypeLibrary, "lodash": TypeLibrary, "axios": TypeLibrary,

	// Technologies / infra
	"postgresql": TypeTechnology, "postgres": TypeTechnology, "mysql": TypeTechnology,
	"redis": TypeTechnology, "sqlite": TypeTechnology, "mongodb": TypeTechnology,
	"docker": TypeTool, "kubernetes": TypeTechnology, "k8s": TypeTechnology,
	"graphql": TypeAPI, "grpc": TypeAPI, "rest": TypeAPI, "websocket": TypeAPI,
	"kafka": TypeTechnology, "rabbitmq": TypeTechnology, "elasticsearch": TypeTechnology,

	// Patterns / concepts
	"singleton": TypePattern, "factory": TypePattern, "observer": TypePattern,
	"middleware": TypeComponent, "decorator": TypePattern, "adapter": TypePattern,
	"repository": TypePattern, "microservice": TypeConcept, "monolith": TypeConcept,
	"cache": TypeComponent, "queue": TypeComponent, "pipeline": TypeConcept,
	"authentication": TypeConcept, "authorization": TypeConcept, "idempotency": TypeConcept,

	// Tools
	"webpack": TypeTool, "vite": TypeTool, "eslint": TypeTool, "jest": TypeTool,
	"terraform": TypeTool, "ansible": TypeTool, "helm": TypeTool,
}

// declPattern matches a code-declaration keyword followed by an identifier,
// e.g. "class Widget", "interface Shape", "type Money", "function total".
var declPattern = regexp.MustCompile(`\b(class|interface|type|function)\s+([A-Za-z_][A-Za-z0-9_]*)`)

var declTypeByKeyword = map[string]Type{
	"class":     TypeClass,
	"interface": TypeInterface,
	"type":      TypeTypeAlias,
	"function":  TypeFunction,
}

// keywordPattern matches any of keywordTypes' keys as a whole word, built
// once at package init so Discover doesn't recompile it per call.
var keywordPattern = buildKeywordPattern()

func buildKeywordPattern() *regexp.Regexp {
	// Sorted isn't required for correctness (alternation tries all
	// branches), only for a stable compiled pattern across runs.
	keys := make([]string, 0, len(keywordTypes))
	for k := range keywordTypes {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Strings(keys)
	pattern := `(?i)\b(`
	for i, k := range keys {
		if i > 0 {
			pattern += "|"
		}
		pattern += k
	}
	pattern += `)\b`
	return regexp.MustCompile(pattern)
}

// LexicalProvider is the default, LLM-free Provider: regex declaration
// matching plus a fixed keyword table, per §4.8.
type LexicalProvider struct{}

// NewLexicalProvider constructs the default provider.
func NewLexicalProvider() *LexicalProvider {
	return &LexicalProvider{}
}

// Discover never returns an error; lexical matching cannot fail, it can
// only find nothing.
func (p *LexicalProvider) Discover(text string) (*DiscoveryResult, error) {
	result := &DiscoveryResult{}
	seen := make(map[string]bool)

	for _, m := range declPattern.FindAllStringSubmatch(text, -1) {
		keyword, name := m[1], m[2]
		t, ok := declTypeByKeyword[keyword]
		if !ok {
			continue
		}
		key := string(t) + ":" + name
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Entities = append(result.Entities, ExtractedEntity{Name: name, Type: t, Confidence: 0.9})
	}

	for _, m := range keywordPattern.FindAllString(text, -1) {
		t, ok := keywordTypes[normalizeMatch(m)]
		if !ok {
			continue
		}
		key := string(t) + ":" + normalizeMatch(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Entities = append(result.Entities, ExtractedEntity{Name: normalizeMatch(m), Type: t, Confidence: 0.75})
	}

	return result, nil
}

func normalizeMatch(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
