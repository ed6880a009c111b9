// Package worker implements the Worker Pool (component L): a fixed-size
// set of goroutines that pull claims from the Processing Queue and drive
// the Indexing Orchestrator for each one, per §5's scheduling model.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cecon-labs/codegraph/internal/orchestrator"
	"github.com/cecon-labs/codegraph/internal/queue"
)

// defaultPollInterval is how long an idle worker waits before checking the
// queue again when Claim finds nothing eligible.
const defaultPollInterval = 250 * time.Millisecond

// Pool runs Config.Concurrency workers against a Queue. A Pool is
// single-use: Start then Stop once; construct a new Pool to restart.
type Pool struct {
	queue        *queue.Queue
	orchestrator *orchestrator.Orchestrator
	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a Pool. Concurrency is read from q.Config().Concurrency.
func New(q *queue.Queue, o *orchestrator.Orchestrator) *Pool {
	return &Pool{
		queue:        q,
		orchestrator: o,
		pollInterval: defaultPollInterval,
	}
}

// Start launches Config.Concurrency worker goroutines. Calling Start
// twice without an intervening Stop is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	concurrency := p.queue.Config().Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
}

// Stop requests a graceful drain: workers stop claiming new files but let
// their current claim finish before exiting. Per §5, hard cancellation of
// an in-flight file is not exposed — Stop blocks until every worker has
// returned from its current ProcessFile call.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, ok, err := p.queue.Claim(ctx)
		if err != nil {
			slog.Error("worker claim failed", slog.Int("worker", id), slog.String("error", err.Error()))
			p.sleepOrStop(ctx)
			continue
		}
		if !ok {
			p.sleepOrStop(ctx)
			continue
		}

		p.process(ctx, rec.ID, rec.Path)
	}
}

func (p *Pool) sleepOrStop(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}

func (p *Pool) process(ctx context.Context, fileID, path string) {
	sink := &progressSink{queue: p.queue, fileID: fileID, path: path}

	result, err := p.orchestrator.ProcessFile(ctx, path, "", sink)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown in progress: leave the row at StatusProcessing.
			// ResetInFlightToPending restores it to pending at next startup
			// without consuming a retry attempt for an intentional stop.
			return
		}
		if failErr := p.queue.Fail(context.Background(), fileID, path, err); failErr != nil {
			slog.Error("failed to record processing failure",
				slog.String("path", path), slog.String("error", failErr.Error()))
		}
		return
	}

	if err := p.queue.Complete(context.Background(), fileID, path, queue.CompletionResult{
		ChunksCount:        result.ChunksCount,
		NodesCount:         result.NodesCount,
		RelationshipsCount: result.RelationshipsCount,
	}); err != nil {
		slog.Error("failed to record completion", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// progressSink adapts the Queue's ReportProgress into an
// orchestrator.ProgressSink so the Orchestrator's internal step markers
// flow straight into file:progress events without the Pool polling state.
type progressSink struct {
	queue  *queue.Queue
	fileID string
	path   string
}

func (s *progressSink) OnProgress(pct int, step string) {
	if err := s.queue.ReportProgress(context.Background(), s.fileID, s.path, pct, step); err != nil {
		slog.Warn("progress report failed", slog.String("path", s.path), slog.String("error", err.Error()))
	}
}
