// Package worker runs goroutines that are stopped together.
package worker

import (
	"context"
	"sync"
)

// Worker is a long running task.
type Worker interface {
	// Run is a blocking method that returns when ctx is done or the work is finished.
	Run(ctx context.Context)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context)

// Run calls f(ctx).
func (f WorkerFunc) Run(ctx context.Context) { f(ctx) }

// Workers is a group of workers sharing a single stop signal. The zero value is ready to use.
type Workers struct {
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (w *Workers) init() {
	w.once.Do(func() {
		w.ctx, w.cancel = context.WithCancel(context.Background())
	})
}

// StartWithOnFinishHandler runs r in a new goroutine and calls onFinish after r returns.
func (w *Workers) StartWithOnFinishHandler(r Worker, onFinish func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		r.Run(w.ctx)
		if onFinish != nil {
			onFinish()
		}
	}()
}

// Start runs r in a new goroutine.
func (w *Workers) Start(r Worker) {
	w.StartWithOnFinishHandler(r, nil)
}

// Stop cancels the context of all workers and waits for them to return.
func (w *Workers) Stop() {
	w.init()
	w.cancel()
	w.wg.Wait()
}
