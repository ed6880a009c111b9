// Package queue implements the Processing Queue (component K): a
// persistent FIFO, backed by the File Metadata DB, that feeds the Worker
// Pool and publishes a lifecycle event stream for observers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cecon-labs/codegraph/internal/metadata"
)

// EventType identifies one of the four lifecycle events §4.11 defines.
type EventType string

const (
	EventFileStart    EventType = "file:start"
	EventFileProgress EventType = "file:progress"
	EventFileComplete EventType = "file:complete"
	EventFileFailed   EventType = "file:failed"
)

// Event is published to subscribers as a file moves through the queue.
// Observers consume this for UI/telemetry; the queue itself never blocks
// on a slow or absent subscriber.
type Event struct {
	Type               EventType
	FileID             string
	Path               string
	Progress           int
	Step               string
	ChunksCount        int
	NodesCount         int
	RelationshipsCount int
	Err                error
}

// CompletionResult is what a worker reports back to Complete after a
// successful Orchestrator.ProcessFile call.
type CompletionResult struct {
	ChunksCount        int
	NodesCount         int
	RelationshipsCount int
}

// Config configures retry and concurrency behavior. AutoStart is read by
// the Worker Pool, not the Queue itself.
type Config struct {
	Concurrency      int
	MaxRetries       int
	RetryDelayMillis int64
	AutoStart        bool
}

// DefaultConfig returns the defaults §4.11 implies: a small worker pool
// with exponential backoff starting at one second.
func DefaultConfig() Config {
	return Config{
		Concurrency:      2,
		MaxRetries:       3,
		RetryDelayMillis: 1000,
		AutoStart:        true,
	}
}

const maxBackoff = time.Minute

// Queue is the persistent FIFO over the Metadata DB (J). A Queue has no
// goroutines of its own; the Worker Pool (L) owns the polling loop and
// calls Claim/Complete/Fail/ReportProgress from its own workers.
type Queue struct {
	store  metadata.Store
	config Config

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// New constructs a Queue over store. Zero-value Config fields fall back
// to DefaultConfig's values.
func New(store metadata.Store, cfg Config) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.RetryDelayMillis <= 0 {
		cfg.RetryDelayMillis = DefaultConfig().RetryDelayMillis
	}
	return &Queue{
		store:       store,
		config:      cfg,
		subscribers: make(map[int]chan Event),
	}
}

// Config returns the queue's effective configuration.
func (q *Queue) Config() Config {
	return q.config
}

// Subscribe registers an observer and returns its event channel plus an
// unsubscribe function. The channel is buffered; a full channel drops the
// oldest pending event rather than blocking queue progress.
func (q *Queue) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)

	q.mu.Lock()
	id := q.nextSubID
	q.nextSubID++
	q.subscribers[id] = ch
	q.mu.Unlock()

	unsubscribe := func() {
		q.mu.Lock()
		delete(q.subscribers, id)
		q.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

func (q *Queue) publish(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the oldest buffered event to make room
			// rather than block indexing on an observer.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Enqueue inserts or updates fileID's record to StatusPending, per §4.11's
// coalescing rule: a concurrent enqueue for the same path moves the
// existing record back to pending, resetting retryCount only when hash
// changed, and always clearing any pending backoff so it is immediately
// eligible again.
func (q *Queue) Enqueue(ctx context.Context, path, hash string) (string, error) {
	fileID := metadata.GenerateFileID(path)

	existing, err := q.store.GetFileByPath(ctx, path)
	if err != nil {
		rec := &metadata.FileRecord{
			ID:         fileID,
			Path:       path,
			Status:     metadata.StatusPending,
			Hash:       hash,
			MaxRetries: q.config.MaxRetries,
			EnqueuedAt: time.Now(),
		}
		if err := q.store.InsertFile(ctx, rec); err != nil {
			return "", fmt.Errorf("enqueue new file: %w", err)
		}
		return fileID, nil
	}

	retryCount := existing.RetryCount
	if existing.Hash != hash {
		retryCount = 0
	}
	maxRetries := existing.MaxRetries
	if maxRetries == 0 {
		maxRetries = q.config.MaxRetries
	}

	rec := &metadata.FileRecord{
		ID:                 fileID,
		Path:               path,
		Status:             metadata.StatusPending,
		Hash:               hash,
		RetryCount:         retryCount,
		MaxRetries:         maxRetries,
		ChunksCount:        existing.ChunksCount,
		NodesCount:         existing.NodesCount,
		RelationshipsCount: existing.RelationshipsCount,
		EnqueuedAt:         time.Now(),
	}
	if err := q.store.InsertFile(ctx, rec); err != nil {
		return "", fmt.Errorf("re-enqueue file: %w", err)
	}
	return fileID, nil
}

// Claim atomically takes the next eligible pending file, marking it
// StatusProcessing, and publishes file:start. Returns (nil, false, nil)
// when the queue is empty.
func (q *Queue) Claim(ctx context.Context) (*metadata.FileRecord, bool, error) {
	rec, err := q.store.ClaimNextPending(ctx, time.Now())
	if err != nil {
		return nil, false, fmt.Errorf("claim next pending: %w", err)
	}
	if rec == nil {
		return nil, false, nil
	}
	q.publish(Event{Type: EventFileStart, FileID: rec.ID, Path: rec.Path})
	return rec, true, nil
}

// ReportProgress updates fileID's progress/step and publishes
// file:progress. Workers pass this as the Orchestrator's ProgressSink.
func (q *Queue) ReportProgress(ctx context.Context, fileID, path string, pct int, step string) error {
	if err := q.store.UpdateFile(ctx, fileID, &metadata.Patch{
		Progress:    &pct,
		CurrentStep: &step,
	}); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	q.publish(Event{Type: EventFileProgress, FileID: fileID, Path: path, Progress: pct, Step: step})
	return nil
}

// Complete marks fileID StatusCompleted with the Orchestrator's result
// counts and publishes file:complete.
func (q *Queue) Complete(ctx context.Context, fileID, path string, result CompletionResult) error {
	status := metadata.StatusCompleted
	now := time.Now()
	progress := 100
	empty := ""
	if err := q.store.UpdateFile(ctx, fileID, &metadata.Patch{
		Status:                &status,
		Progress:              &progress,
		ChunksCount:           &result.ChunksCount,
		NodesCount:            &result.NodesCount,
		RelationshipsCount:    &result.RelationshipsCount,
		ProcessingCompletedAt: &now,
		ErrorMessage:          &empty,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	q.publish(Event{
		Type: EventFileComplete, FileID: fileID, Path: path, Progress: 100,
		ChunksCount: result.ChunksCount, NodesCount: result.NodesCount,
		RelationshipsCount: result.RelationshipsCount,
	})
	return nil
}

// Fail applies §4.11's retry policy for a failed processing attempt:
// retryCount += 1; if it's still within maxRetries, the file goes back to
// pending with an exponentially growing backoff (capped at one minute);
// otherwise it is marked StatusFailed. Either way file:failed is
// published so observers see every attempt, not just the terminal one.
func (q *Queue) Fail(ctx context.Context, fileID, path string, procErr error) error {
	rec, err := q.store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file for retry: %w", err)
	}

	retryCount := rec.RetryCount + 1
	maxRetries := rec.MaxRetries
	if maxRetries == 0 {
		maxRetries = q.config.MaxRetries
	}
	errMsg := procErr.Error()

	if retryCount <= maxRetries {
		status := metadata.StatusPending
		nextEligible := time.Now().Add(backoffDuration(q.config.RetryDelayMillis, retryCount))
		if err := q.store.UpdateFile(ctx, fileID, &metadata.Patch{
			Status:         &status,
			RetryCount:     &retryCount,
			ErrorMessage:   &errMsg,
			NextEligibleAt: &nextEligible,
		}); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
	} else {
		status := metadata.StatusFailed
		if err := q.store.UpdateFile(ctx, fileID, &metadata.Patch{
			Status:       &status,
			RetryCount:   &retryCount,
			ErrorMessage: &errMsg,
		}); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
	}

	q.publish(Event{Type: EventFileFailed, FileID: fileID, Path: path, Err: procErr})
	return nil
}

// Remove deletes fileID from the queue's backing store entirely — used
// when the Watcher observes a file deletion (§4.12).
func (q *Queue) Remove(ctx context.Context, fileID string) error {
	return q.store.Delete(ctx, fileID)
}

// backoffDuration computes retryDelayMillis * 2^(retryCount-1), capped at
// one minute, per §4.11.
func backoffDuration(retryDelayMillis int64, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	base := time.Duration(retryDelayMillis) * time.Millisecond
	shift := retryCount - 1
	if shift > 10 { // guard against overflow for pathological retryCount
		return maxBackoff
	}
	d := base * time.Duration(int64(1)<<uint(shift))
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
