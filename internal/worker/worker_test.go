package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/content"
	"github.com/cecon-labs/codegraph/internal/entity"
	"github.com/cecon-labs/codegraph/internal/graph"
	"github.com/cecon-labs/codegraph/internal/metadata"
	"github.com/cecon-labs/codegraph/internal/orchestrator"
	"github.com/cecon-labs/codegraph/internal/queue"
	"github.com/cecon-labs/codegraph/internal/relate"
)

func newTestPool(t *testing.T, root string) (*Pool, *queue.Queue, metadata.Store, *graph.SQLiteStore) {
	t.Helper()

	mstore, err := metadata.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mstore.Close() })

	gstore, err := graph.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gstore.Close() })

	extractor := relate.NewExtractor()
	t.Cleanup(func() { _ = extractor.Close() })

	resolver := entity.NewResolver(entity.NewLexicalProvider(), gstore, entity.DefaultConfig())

	o := orchestrator.New(
		content.New(root),
		chunk.NewCodeChunker(),
		chunk.NewMarkdownChunker(),
		nil, nil,
		gstore, extractor, resolver,
		orchestrator.Config{},
	)

	q := queue.New(mstore, queue.Config{Concurrency: 2, MaxRetries: 1, RetryDelayMillis: 10})
	pool := New(q, o)
	return pool, q, mstore, gstore
}

func TestPool_StartStop_ProcessesEnqueuedFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`{}`), 0o644))

	pool, q, mstore, gstore := newTestPool(t, root)
	ctx := context.Background()

	fileID, err := q.Enqueue(ctx, "data.json", "hash1")
	require.NoError(t, err)

	pool.Start(ctx)

	require.Eventually(t, func() bool {
		rec, err := mstore.GetFile(ctx, fileID)
		return err == nil && rec.Status == metadata.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	pool.Stop()

	files, err := gstore.ListAllFiles(ctx)
	require.NoError(t, err)
	assert.Contains(t, files, "data.json")
}

func TestPool_StartStop_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	pool, _, _, _ := newTestPool(t, root)
	ctx := context.Background()

	pool.Start(ctx)
	pool.Start(ctx) // no-op, must not panic or double-launch
	pool.Stop()
	pool.Stop() // no-op
}

func TestPool_EmptyQueue_WorkersIdleWithoutError(t *testing.T) {
	root := t.TempDir()
	pool, _, _, _ := newTestPool(t, root)
	ctx := context.Background()

	pool.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	pool.Stop()
}
