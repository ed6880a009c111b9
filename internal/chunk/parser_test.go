package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseGoFile_ReturnsAST(t *testing.T) {
	source := []byte(`package main

func hello() {
	println("hi")
}
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")

	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, "go", tree.Language)
	assert.NotEmpty(t, tree.Root.FindChildrenByType("function_declaration"))
}

func TestParser_UnsupportedLanguage_ReturnsError(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte("x"), "cobol")
	assert.Error(t, err)
}

func TestNode_WalkVisitsAllDescendants(t *testing.T) {
	source := []byte(`package main

func a() {}
func b() {}
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")
	require.NoError(t, err)

	count := 0
	tree.Root.Walk(func(n *Node) bool {
		count++
		return true
	})
	assert.True(t, count > 2)
}

func TestNode_FindAllByType_Recursive(t *testing.T) {
	source := []byte(`package main

func a() {}
func b() {}
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")
	require.NoError(t, err)

	fns := tree.Root.FindAllByType("function_declaration")
	assert.Len(t, fns, 2)
}

func TestNode_GetContent_ExtractsSourceSlice(t *testing.T) {
	source := []byte(`package main
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")
	require.NoError(t, err)

	pkg := tree.Root.FindChildByType("package_clause")
	require.NotNil(t, pkg)
	assert.Equal(t, "package main", pkg.GetContent(source))
}
