// Package runner executes runs in-process on a bounded worker pool. It is
// the single-binary alternative to dispatching through the message queue.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

type Runner struct {
	executor ports.RunExecutor
	logger   *slog.Logger
	queue    chan string
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ ports.RunLauncher = (*Runner)(nil)

// New starts the worker pool immediately. Queued runs outlive the request
// context that launched them; Stop is the only way to cancel them.
func New(executor ports.RunExecutor, workers, queueSize int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		executor: executor,
		logger:   logger,
		queue:    make(chan string, queueSize),
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}
	return r
}

// Launch enqueues a run. A full queue is reported as temporary so the
// caller can answer with a retryable status instead of blocking.
func (r *Runner) Launch(ctx context.Context, runID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("runner stopped: %w", domain.ErrTemporary)
	}
	r.mu.Unlock()

	select {
	case r.queue <- runID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("run queue full: %w", domain.ErrTemporary)
	}
}

// Stop drains nothing: queued but unstarted runs stay in their persisted
// queued state and a restart or another worker picks them up.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	close(r.queue)
	r.wg.Wait()
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case runID, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.executor.ExecuteRun(ctx, runID); err != nil {
				r.logger.Error("run execution failed", "run_id", runID, "error", err)
			}
		}
	}
}
