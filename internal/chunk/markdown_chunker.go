package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// MarkdownStrategy selects how a markdown file is split.
type MarkdownStrategy string

const (
	// MarkdownStrategyHybrid sections by ATX heading hierarchy (default).
	MarkdownStrategyHybrid MarkdownStrategy = "hybrid"
	// MarkdownStrategyOverlap produces fixed line-window chunks with overlap,
	// ignoring heading structure; used for doc-style retrieval when the
	// caller opts in.
	MarkdownStrategyOverlap MarkdownStrategy = "overlap"
)

// MarkdownChunkerOptions configures the markdown chunker.
type MarkdownChunkerOptions struct {
	Strategy      MarkdownStrategy
	MaxTokens     int
	OverlapTokens int
}

// MarkdownChunker implements header-based and fixed-window Markdown chunking.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// NewMarkdownChunker creates a markdown chunker using the hybrid strategy.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.Strategy == "" {
		opts.Strategy = MarkdownStrategyHybrid
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close is a no-op; MarkdownChunker holds no resources.
func (c *MarkdownChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into semantic chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	if c.options.Strategy == MarkdownStrategyOverlap {
		return c.chunkByOverlapWindow(file, content), nil
	}
	return c.chunkBySections(file, content), nil
}

type section struct {
	level     int
	title     string
	startLine int // 1-indexed
	endLine   int // 1-indexed inclusive
	content   string
}

// chunkBySections implements the hybrid heading strategy: each section spans
// from its heading to the line before the next heading of any level (or
// EOF), content preserved verbatim. Sections never overlap, so a heading's
// section does not include the subsections nested under it.
func (c *MarkdownChunker) chunkBySections(file *FileInput, content string) []*Chunk {
	lines := strings.Split(content, "\n")
	trailingNewline := strings.HasSuffix(content, "\n")
	lineCount := len(lines)
	if trailingNewline {
		lineCount--
	}

	var sections []*section
	var cur *section

	for i := 0; i < lineCount; i++ {
		line := lines[i]
		lineNo := i + 1
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			title := strings.TrimSpace(m[2])

			// Any heading closes the currently open section.
			if cur != nil {
				cur.endLine = lineNo - 1
				sections = append(sections, cur)
			}
			cur = &section{level: level, title: title, startLine: lineNo}
			continue
		}
		if cur == nil {
			// Content before any heading: synthesize a preamble section.
			cur = &section{level: 0, title: "", startLine: lineNo}
		}
	}
	if cur != nil {
		cur.endLine = lineCount
		sections = append(sections, cur)
	}

	var chunks []*Chunk
	for _, sec := range sections {
		body := strings.Join(lines[sec.startLine-1:sec.endLine], "\n")
		chunkType := ChunkTypeMarkdownSection
		kind := SymbolKindHeading
		symbolName := sec.title
		if sec.level == 0 {
			chunkType = ChunkTypeDocumentSection
			kind = SymbolKindOther
			symbolName = ""
		}
		chunks = append(chunks, &Chunk{
			ID:         GenerateChunkID(file.Path, sec.startLine, sec.endLine),
			FilePath:   file.Path,
			Content:    body,
			ChunkType:  chunkType,
			SymbolName: symbolName,
			SymbolKind: kind,
			Language:   "markdown",
			StartLine:  sec.startLine,
			EndLine:    sec.endLine,
			Extra: map[string]string{
				"heading_level": strconv.Itoa(sec.level),
			},
		})
	}
	return chunks
}

// chunkByOverlapWindow produces fixed line-window chunks with overlap.
func (c *MarkdownChunker) chunkByOverlapWindow(file *FileInput, content string) []*Chunk {
	lines := strings.Split(content, "\n")

	charsPerLine := 80
	maxLines := (c.options.MaxTokens * TokensPerChar) / charsPerLine
	if maxLines < 5 {
		maxLines = 5
	}
	overlapLines := (c.options.OverlapTokens * TokensPerChar) / charsPerLine
	if overlapLines < 1 {
		overlapLines = 1
	}

	var chunks []*Chunk
	for i := 0; i < len(lines); {
		end := i + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[i:end], "\n")
		startLine := i + 1
		endLine := end

		chunks = append(chunks, &Chunk{
			ID:        GenerateChunkID(file.Path, startLine, endLine),
			FilePath:  file.Path,
			Content:   body,
			ChunkType: ChunkTypeDocumentSection,
			Language:  "markdown",
			StartLine: startLine,
			EndLine:   endLine,
			Extra:     map[string]string{},
		})

		if end >= len(lines) {
			break
		}
		i = end - overlapLines
		if i <= 0 {
			i = end
		}
	}
	return chunks
}
