package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"golang.org/x/sync/semaphore"
)

// Runner executes accepted deliveries off the request path. At most
// maxConcurrent tasks run at once; further submissions queue on the semaphore
// inside their own goroutine so Submit never blocks the caller.
type Runner struct {
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
	logger   *monitoring.Logger
}

// NewRunner creates a runner. A non-positive limit means one task at a time.
func NewRunner(maxConcurrent int, logger *monitoring.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit schedules fn and returns immediately. It reports false once the
// runner is shutting down.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.inFlight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.logger.Warn("Background task dropped", "task", name, "error", err)
			return
		}
		defer r.sem.Release(1)

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Background task panicked", "task", name, "panic", rec)
			}
		}()

		fn(r.ctx)
	}()
	return true
}

// InFlight is the number of submitted tasks that have not finished
func (r *Runner) InFlight() int {
	return int(r.inFlight.Load())
}

// Shutdown stops accepting work and waits for running tasks. When ctx expires
// first, remaining tasks are cancelled and ctx.Err is returned without
// waiting for them to observe it.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}
