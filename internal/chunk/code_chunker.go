package chunk

import (
	"context"
	"strings"
)

// CodeChunker implements AST-aware chunking using tree-sitter. For each
// top-level declaration it emits a jsdoc chunk (TS/JS family, only when a
// `/** ... */` comment immediately precedes the declaration) and/or a code
// chunk spanning the declaration body, per the parser registry rules.
type CodeChunker struct {
	parser    *Parser
	extractor *declExtractor
	registry  *LanguageRegistry
}

// NewCodeChunker creates a new code chunker using the default language registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: newDeclExtractor(registry),
		registry:  registry,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into jsdoc/code chunks. Returns an empty slice (not an
// error) for unsupported languages or unparsable source, per §4.2: parsers
// are pure and syntax errors are non-fatal.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	if _, supported := c.registry.GetByName(file.Language); !supported {
		return nil, nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return nil, nil
	}

	decls := c.extractor.findDecls(tree, file.Language)
	if len(decls) == 0 {
		return nil, nil
	}

	var chunks []*Chunk
	for _, d := range decls {
		chunks = append(chunks, c.chunksForDecl(d, tree, file)...)
	}
	return chunks, nil
}

func (c *CodeChunker) chunksForDecl(d *declInfo, tree *Tree, file *FileInput) []*Chunk {
	var out []*Chunk

	if d.jsdoc != "" {
		startLine := int(lineOf(tree.Source, d.jsdocStart)) + 1
		endLine := int(d.node.StartPoint.Row) // line before the declaration, 1-indexed inclusive of jsdoc's own last line
		if endLine < startLine {
			endLine = startLine
		}
		out = append(out, &Chunk{
			ID:         GenerateChunkID(file.Path, startLine, endLine),
			FilePath:   file.Path,
			Content:    d.jsdoc,
			ChunkType:  ChunkTypeJSDoc,
			SymbolName: d.name,
			SymbolKind: d.kind,
			Language:   file.Language,
			StartLine:  startLine,
			EndLine:    endLine,
			Extra:      map[string]string{},
		})
	}

	codeStart := int(d.node.StartPoint.Row) + 1
	codeEnd := int(d.node.EndPoint.Row) + 1
	out = append(out, &Chunk{
		ID:         GenerateChunkID(file.Path, codeStart, codeEnd),
		FilePath:   file.Path,
		Content:    d.node.GetContent(tree.Source),
		ChunkType:  classifyChunkType(file.Language, file.Path),
		SymbolName: d.name,
		SymbolKind: d.kind,
		Language:   file.Language,
		StartLine:  codeStart,
		EndLine:    codeEnd,
		Extra:      map[string]string{},
	})

	return out
}

// classifyChunkType assigns the chunkType for a declaration's code chunk.
// HTML declarations are html_block; recognized config filenames (e.g.
// vite.config.*) are config_block; everything else is plain code.
func classifyChunkType(language, path string) ChunkType {
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	switch {
	case language == "html":
		return ChunkTypeHTMLBlock
	case strings.HasPrefix(base, "vite.config."):
		return ChunkTypeConfigBlock
	default:
		return ChunkTypeCode
	}
}

// lineOf returns the 0-indexed line number of byte offset pos in source.
func lineOf(source []byte, pos int) uint32 {
	if pos < 0 {
		return 0
	}
	var line uint32
	for i := 0; i < pos && i < len(source); i++ {
		if source[i] == '\n' {
			line++
		}
	}
	return line
}
