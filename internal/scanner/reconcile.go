package scanner

import (
	"context"
	"fmt"

	"github.com/cecon-labs/codegraph/internal/content"
	"github.com/cecon-labs/codegraph/internal/graph"
	"github.com/cecon-labs/codegraph/internal/metadata"
	"github.com/cecon-labs/codegraph/internal/queue"
	"github.com/cecon-labs/codegraph/internal/vectorstore"
)

// ReconcileResult summarizes one initial-scan reconciliation pass, per
// §4.12's missing/changed/unchanged classification.
type ReconcileResult struct {
	Enqueued int
	Skipped  int
	Errors   []error
}

// ReconcileWorkspace walks opts.RootDir via sc, hashes each discovered
// file through contentStore, and classifies it against the Metadata DB:
// missing or hash-changed files are enqueued onto q; hash-matching files
// are skipped. This is the Workspace Scanner half of component M — the
// Watcher (below) handles the live-change half.
func ReconcileWorkspace(
	ctx context.Context,
	sc *Scanner,
	opts *ScanOptions,
	contentStore *content.Store,
	mstore metadata.Store,
	q *queue.Queue,
) (*ReconcileResult, error) {
	results, err := sc.Scan(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	res := &ReconcileResult{}
	for r := range results {
		if r.Error != nil {
			res.Errors = append(res.Errors, r.Error)
			continue
		}

		loaded, err := contentStore.Load(ctx, r.File.Path, "")
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("hash %s: %w", r.File.Path, err))
			continue
		}

		existing, lookupErr := mstore.GetFileByPath(ctx, r.File.Path)
		if lookupErr == nil && existing.Hash == loaded.Hash {
			res.Skipped++
			continue
		}

		if _, err := q.Enqueue(ctx, r.File.Path, loaded.Hash); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("enqueue %s: %w", r.File.Path, err))
			continue
		}
		res.Enqueued++
	}
	return res, nil
}

// ApplyFileEvent translates one debounced FileEvent from a Watcher into
// the Queue/Graph/Vector Store/Metadata DB side effects §4.12 mandates:
// created/modified files are hashed and (re-)enqueued; deleted files are
// purged from the Graph Store, Vector Store, and Metadata DB directly,
// bypassing the queue entirely since there is nothing left to process.
// rel is the event's path relative to the workspace root.
func ApplyFileEvent(
	ctx context.Context,
	rel string,
	deleted bool,
	contentStore *content.Store,
	gstore graph.Store,
	vectors vectorstore.Store,
	mstore metadata.Store,
	q *queue.Queue,
) error {
	if deleted {
		if vectors != nil {
			if err := vectors.DeleteChunksByFile(ctx, rel); err != nil {
				return fmt.Errorf("delete vectors for %s: %w", rel, err)
			}
		}
		if err := gstore.DeleteFile(ctx, rel); err != nil {
			return fmt.Errorf("delete graph file %s: %w", rel, err)
		}
		if err := mstore.Delete(ctx, metadata.GenerateFileID(rel)); err != nil {
			return fmt.Errorf("delete metadata for %s: %w", rel, err)
		}
		return nil
	}

	loaded, err := contentStore.Load(ctx, rel, "")
	if err != nil {
		return fmt.Errorf("hash %s: %w", rel, err)
	}
	if _, err := q.Enqueue(ctx, rel, loaded.Hash); err != nil {
		return fmt.Errorf("enqueue %s: %w", rel, err)
	}
	return nil
}
