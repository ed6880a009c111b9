package relate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/graph"
)

type fakeGraphReader struct {
	files  []string
	chunks map[string][]*graph.ChunkNode
}

func (f *fakeGraphReader) ListAllFiles(ctx context.Context) ([]string, error) {
	return f.files, nil
}

func (f *fakeGraphReader) GetFileChunks(ctx context.Context, filePath string) ([]*graph.ChunkNode, error) {
	return f.chunks[filePath], nil
}

func TestExtract_ContainsEdges_OneEdgePerChunkInOrder(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	chunks := []*chunk.Chunk{
		{ID: "chunk:a.ts:1-2", ChunkType: chunk.ChunkTypeCode},
		{ID: "chunk:a.ts:3-4", ChunkType: chunk.ChunkTypeCode},
	}
	reader := &fakeGraphReader{}

	edges, err := e.Extract(context.Background(), reader, &Input{
		FilePath: "a.ts",
		Content:  []byte("const x = 1;\n"),
		Language: "typescript",
		Chunks:   chunks,
	})
	require.NoError(t, err)

	var containsEdges []*graph.Edge
	for _, edge := range edges {
		if edge.Type == graph.EdgeContains {
			containsEdges = append(containsEdges, edge)
		}
	}
	require.Len(t, containsEdges, 2)
	assert.Equal(t, "0", containsEdges[0].Properties["order"])
	assert.Equal(t, "1", containsEdges[1].Properties["order"])
}

func TestExtract_DocumentsEdges_PairsBySymbolNameAndFile(t *testing.T) {
	chunks := []*chunk.Chunk{
		{ID: "chunk:a.ts:1-4", ChunkType: chunk.ChunkTypeJSDoc, SymbolName: "add"},
		{ID: "chunk:a.ts:5-6", ChunkType: chunk.ChunkTypeCode, SymbolName: "add"},
		{ID: "chunk:a.ts:7-8", ChunkType: chunk.ChunkTypeCode, SymbolName: "subtract"},
	}

	edges := documentsEdges(chunks)
	require.Len(t, edges, 1)
	assert.Equal(t, "chunk:a.ts:1-4", edges[0].From)
	assert.Equal(t, "chunk:a.ts:5-6", edges[0].To)
}

func TestExtract_Imports_RelativeSpecifierResolvedAgainstKnownFiles(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	source := `import { helper } from './util';

function main() {
  helper();
}
`
	reader := &fakeGraphReader{
		files: []string{"src/main.ts", "src/util.ts"},
		chunks: map[string][]*graph.ChunkNode{
			"src/util.ts": {{ID: "chunk:util.ts:1-2", SymbolName: "helper"}},
		},
	}

	edges, err := e.Extract(context.Background(), reader, &Input{
		FilePath: "src/main.ts",
		Content:  []byte(source),
		Language: "typescript",
		Chunks:   []*chunk.Chunk{{ID: "chunk:main.ts:3-5", ChunkType: chunk.ChunkTypeCode, SymbolName: "main"}},
	})
	require.NoError(t, err)

	var imports, importsSymbol int
	for _, edge := range edges {
		switch edge.Type {
		case graph.EdgeImports:
			imports++
			assert.Equal(t, "src/util.ts", edge.To)
		case graph.EdgeImportsSymbol:
			importsSymbol++
		}
	}
	assert.Equal(t, 1, imports)
	assert.Equal(t, 1, importsSymbol)
}

func TestExtract_Imports_BareSpecifierSkipped(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	source := `import React from 'react';
`
	reader := &fakeGraphReader{files: []string{"src/main.ts"}}

	edges, err := e.Extract(context.Background(), reader, &Input{
		FilePath: "src/main.ts",
		Content:  []byte(source),
		Language: "typescript",
		Chunks:   nil,
	})
	require.NoError(t, err)

	for _, edge := range edges {
		assert.NotEqual(t, graph.EdgeImports, edge.Type)
	}
}

func TestExtract_Imports_UnresolvedTargetLeavesNoEdge(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	source := `import { missing } from './not-yet-indexed';
`
	reader := &fakeGraphReader{files: []string{"src/main.ts"}}

	edges, err := e.Extract(context.Background(), reader, &Input{
		FilePath: "src/main.ts",
		Content:  []byte(source),
		Language: "typescript",
	})
	require.NoError(t, err)

	for _, edge := range edges {
		assert.NotEqual(t, graph.EdgeImports, edge.Type)
	}
}

func TestIsBareSpecifier(t *testing.T) {
	assert.True(t, isBareSpecifier("react"))
	assert.True(t, isBareSpecifier("@scope/pkg"))
	assert.False(t, isBareSpecifier("./util"))
	assert.False(t, isBareSpecifier("../util"))
	assert.False(t, isBareSpecifier("/abs/path"))
}
