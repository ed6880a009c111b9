// Package relate implements the Relationship Extractor (component G):
// given a file's chunks and AST, it emits CONTAINS, DOCUMENTS, IMPORTS,
// and IMPORTS_SYMBOL edges for the Graph Store.
package relate

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/graph"
)

// importableExtensions is the set of extensions probed when resolving a
// relative/absolute import specifier to a file in the graph, in probe
// order, per §4.7.
var importableExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

// importLanguages is the set of languages the import analysis applies to.
var importLanguages = map[string]bool{
	"typescript": true,
	"javascript": true,
}

// GraphReader is the read slice of the Graph Store the extractor needs to
// resolve imports against files already indexed.
type GraphReader interface {
	ListAllFiles(ctx context.Context) ([]string, error)
	GetFileChunks(ctx context.Context, filePath string) ([]*graph.ChunkNode, error)
}

// Input bundles the per-file data the extractor needs.
type Input struct {
	AbsolutePath string
	FilePath     string // identity used as the graph's file node id
	Content      []byte
	Language     string
	Chunks       []*chunk.Chunk
}

// Extractor runs AST-level relationship extraction for one file at a
// time; it is not safe for concurrent use on the same instance, like the
// teacher's CodeChunker, but is cheap to construct per worker.
type Extractor struct {
	parser *chunk.Parser
}

// NewExtractor creates a Relationship Extractor.
func NewExtractor() *Extractor {
	return &Extractor{parser: chunk.NewParser()}
}

// Close releases the extractor's parser resources.
func (e *Extractor) Close() error {
	return e.parser.Close()
}

// Extract emits CONTAINS, DOCUMENTS, IMPORTS, and IMPORTS_SYMBOL edges for
// in. Extraction failures (parse errors) are non-fatal: Extract still
// returns the CONTAINS/DOCUMENTS edges it could compute without error.
func (e *Extractor) Extract(ctx context.Context, reader GraphReader, in *Input) ([]*graph.Edge, error) {
	var edges []*graph.Edge

	edges = append(edges, containsEdges(in.FilePath, in.Chunks)...)
	edges = append(edges, documentsEdges(in.Chunks)...)

	if importLanguages[in.Language] {
		importEdges, err := e.importEdges(ctx, reader, in)
		if err == nil {
			edges = append(edges, importEdges...)
		}
	}

	return edges, nil
}

// containsEdges emits one CONTAINS edge per chunk, in emission order.
func containsEdges(filePath string, chunks []*chunk.Chunk) []*graph.Edge {
	edges := make([]*graph.Edge, 0, len(chunks))
	for i, c := range chunks {
		edges = append(edges, &graph.Edge{
			From:       filePath,
			To:         c.ID,
			Type:       graph.EdgeContains,
			Properties: map[string]string{"order": strconv.Itoa(i)},
		})
	}
	return edges
}

// documentsEdges pairs a jsdoc chunk to the code chunk it precedes, per
// invariant 4: same file, same symbolName, jsdoc -> code.
func documentsEdges(chunks []*chunk.Chunk) []*graph.Edge {
	codeBySymbol := make(map[string]*chunk.Chunk)
	for _, c := range chunks {
		if c.ChunkType == chunk.ChunkTypeCode && c.SymbolName != "" {
			codeBySymbol[c.SymbolName] = c
		}
	}

	var edges []*graph.Edge
	for _, c := range chunks {
		if c.ChunkType != chunk.ChunkTypeJSDoc || c.SymbolName == "" {
			continue
		}
		if code, ok := codeBySymbol[c.SymbolName]; ok {
			edges = append(edges, &graph.Edge{From: c.ID, To: code.ID, Type: graph.EdgeDocuments})
		}
	}
	return edges
}

// importSpecifier is a single import/require statement found in the AST.
type importSpecifier struct {
	modulePath string
	names      []string // named bindings imported, e.g. {foo, bar}
}

func (e *Extractor) importEdges(ctx context.Context, reader GraphReader, in *Input) ([]*graph.Edge, error) {
	tree, err := e.parser.Parse(ctx, in.Content, in.Language)
	if err != nil {
		return nil, err
	}

	specifiers := findImportSpecifiers(tree, in.Content)
	if len(specifiers) == 0 {
		return nil, nil
	}

	knownFiles, err := reader.ListAllFiles(ctx)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(knownFiles))
	for _, f := range knownFiles {
		knownSet[f] = true
	}

	var edges []*graph.Edge
	for _, spec := range specifiers {
		if isBareSpecifier(spec.modulePath) {
			continue
		}

		target := resolveImport(in.FilePath, spec.modulePath, knownSet)
		if target == "" {
			continue // unresolved; retried when the target is later indexed
		}

		edges = append(edges, &graph.Edge{From: in.FilePath, To: target, Type: graph.EdgeImports})

		if len(spec.names) == 0 {
			continue
		}
		targetChunks, err := reader.GetFileChunks(ctx, target)
		if err != nil {
			continue
		}
		for _, name := range spec.names {
			for _, tc := range targetChunks {
				if chunkMatchesSymbol(tc, name) {
					for _, sc := range in.Chunks {
						edges = append(edges, &graph.Edge{From: sc.ID, To: tc.ID, Type: graph.EdgeImportsSymbol})
					}
				}
			}
		}
	}

	return edges, nil
}

func chunkMatchesSymbol(c *graph.ChunkNode, name string) bool {
	return c.SymbolName == name || strings.Contains(c.ID, name)
}

// isBareSpecifier reports whether a module specifier refers to an
// external package (starts with a letter, not "." or "/").
func isBareSpecifier(spec string) bool {
	if spec == "" {
		return true
	}
	return spec[0] != '.' && spec[0] != '/'
}

// resolveImport joins spec against the directory of fromPath and probes
// importableExtensions plus index.<ext> forms against knownFiles.
func resolveImport(fromPath, spec string, knownFiles map[string]bool) string {
	dir := filepath.Dir(fromPath)
	joined := filepath.Join(dir, spec)
	joined = filepath.ToSlash(joined)

	if knownFiles[joined] {
		return joined
	}
	for _, ext := range importableExtensions {
		if candidate := joined + ext; knownFiles[candidate] {
			return candidate
		}
	}
	for _, ext := range importableExtensions {
		if candidate := filepath.ToSlash(filepath.Join(joined, "index"+ext)); knownFiles[candidate] {
			return candidate
		}
	}
	return ""
}

// findImportSpecifiers walks the top-level statements of tree for
// import/require specifiers (TS/JS only).
func findImportSpecifiers(tree *chunk.Tree, source []byte) []importSpecifier {
	var specs []importSpecifier

	for _, node := range tree.Root.Children {
		switch node.Type {
		case "import_statement":
			if spec, ok := parseImportStatement(node, source); ok {
				specs = append(specs, spec)
			}
		case "lexical_declaration", "variable_declaration":
			// require('x') assigned to a const/let, e.g. const x = require('./x')
			node.Walk(func(n *chunk.Node) bool {
				if n.Type == "call_expression" {
					if spec, ok := parseRequireCall(n, source); ok {
						specs = append(specs, spec)
					}
				}
				return true
			})
		}
	}

	return specs
}

func parseImportStatement(node *chunk.Node, source []byte) (importSpecifier, bool) {
	var spec importSpecifier
	var names []string

	stringNode := node.FindChildByType("string")
	if stringNode == nil {
		return spec, false
	}
	spec.modulePath = unquote(stringNode.GetContent(source))

	if clause := node.FindChildByType("import_clause"); clause != nil {
		clause.Walk(func(n *chunk.Node) bool {
			if n.Type == "identifier" {
				names = append(names, n.GetContent(source))
			}
			return true
		})
	}
	spec.names = names

	return spec, true
}

func parseRequireCall(node *chunk.Node, source []byte) (importSpecifier, bool) {
	callee := node.FindChildByType("identifier")
	if callee == nil || callee.GetContent(source) != "require" {
		return importSpecifier{}, false
	}
	args := node.FindChildByType("arguments")
	if args == nil {
		return importSpecifier{}, false
	}
	stringNode := args.FindChildByType("string")
	if stringNode == nil {
		return importSpecifier{}, false
	}
	return importSpecifier{modulePath: unquote(stringNode.GetContent(source))}, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
