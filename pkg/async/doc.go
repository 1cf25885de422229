// Package async provides safe concurrent execution primitives for background
// tasks.
//
// SafeGo runs a fire-and-forget task with panic recovery and a timeout. The
// task context is detached from the caller's cancellation, so a finished HTTP
// request does not abort the task:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "page view bump", func(ctx context.Context) error {
//		return store.RecordView(ctx, pageID, time.Now())
//	})
//
// WorkerPool is a fixed set of workers draining a bounded queue. TrySubmit
// never blocks; it reports false when the queue is full or the pool is shut
// down:
//
//	pool := async.NewWorkerPool(logger, 4, 1024, "audit write", 5*time.Second)
//	defer pool.Shutdown(10 * time.Second)
//
//	if !pool.TrySubmit(task) {
//		// dropped
//	}
//
// # Related Packages
//
//   - pkg/render: view counter updates
//   - pkg/audit: asynchronous audit writes
package async
