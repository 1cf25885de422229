package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolShutdown is returned when submitting to a stopped pool
var ErrPoolShutdown = errors.New("worker pool shut down")

// SafeGo executes fn in a goroutine with panic recovery and a timeout.
// The task context keeps parentCtx's values but not its cancellation.
// Errors and panics are logged, never propagated.
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		runTask(ctx, logger, taskName, fn)
	}()
}

func runTask(ctx context.Context, logger logrus.FieldLogger, taskName string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"task":  taskName,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Background task panicked")
		}
	}()

	if err := fn(ctx); err != nil {
		logger.WithError(err).WithField("task", taskName).Warn("Background task failed")
	}
}

// WorkerPool manages a pool of workers that process tasks from a bounded
// queue.
type WorkerPool struct {
	logger   logrus.FieldLogger
	taskName string
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	workCh chan func(context.Context) error
	doneCh chan struct{}
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize tasks.
// Each task runs with its own timeout on a background context.
func NewWorkerPool(logger logrus.FieldLogger, workers, queueSize int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &WorkerPool{
		logger:   logger,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, queueSize),
		doneCh:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn, blocking while the queue is full or until ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolShutdown
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues fn without blocking. It returns false when the queue is
// full or the pool has been shut down.
func (p *WorkerPool) TrySubmit(fn func(context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.workCh <- fn:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker
func (p *WorkerPool) Pending() int {
	return len(p.workCh)
}

// Shutdown stops accepting tasks and waits up to timeout for queued tasks
// to drain.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		runTask(ctx, p.logger, p.taskName, fn)
		cancel()
	}
}
