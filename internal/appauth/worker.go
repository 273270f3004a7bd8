package appauth

import (
	"context"
	"sync"
)

// worker is a single background goroutine that serializes network
// operations for one client. At most one job runs at a time, in
// submission order.
type worker struct {
	mu      sync.Mutex
	jobs    chan func()
	quit    chan struct{}
	pending sync.WaitGroup
	closed  bool
}

func newWorker() *worker {
	w := &worker{
		jobs: make(chan func(), 16),
		quit: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	for job := range w.jobs {
		job()
	}
}

// submit enqueues a job. It returns ErrClientClosed once the worker is
// shutting down. The send happens outside the mutex so a full queue
// never blocks close.
func (w *worker) submit(job func()) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClientClosed
	}
	w.pending.Add(1)
	w.mu.Unlock()
	defer w.pending.Done()

	select {
	case w.jobs <- job:
		return nil
	case <-w.quit:
		return ErrClientClosed
	}
}

// close stops accepting jobs; already-queued jobs still run, and
// submitters blocked on a full queue are released with ErrClientClosed.
// It does not wait for the in-flight job.
func (w *worker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)
	// Wait for in-flight submits before closing the channel, so no
	// send can race the close.
	w.pending.Wait()
	close(w.jobs)
}

// submitWait runs fn on the worker and blocks the caller until it
// finishes or ctx is done. A job abandoned by a cancelled caller still
// runs to completion on the worker; its result is discarded.
func submitWait[T any](ctx context.Context, w *worker, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	resultCh := make(chan outcome, 1)

	err := w.submit(func() {
		value, err := fn(ctx)
		resultCh <- outcome{value: value, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case result := <-resultCh:
		return result.value, result.err
	case <-ctx.Done():
		var zero T
		return zero, ErrCancelled
	}
}
