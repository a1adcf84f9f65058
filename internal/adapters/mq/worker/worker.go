// Package worker runs queued training requests one at a time.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/passwatch/internal/adapters/mq/queue"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// Handler executes one training request.
type Handler interface {
	Handle(ctx context.Context, j queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j queue.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs serially. Because there is exactly one consumer, two
// training runs never overlap.
type Worker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker consuming q with h.
func New(q Queue, h Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(1)
	return w
}

// Run consumes jobs until ctx is cancelled, Shutdown is called or the queue
// is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker after the job in flight, if any, finishes.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(1)
	metrics.UpdateWorkerIdleCount(0)
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		metrics.UpdateWorkerActiveCount(0)
		metrics.UpdateWorkerIdleCount(1)
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "training job panicked",
				logger.String("job_id", j.JobID),
				logger.Any("panic", r),
			)
		}
	}()

	if err := w.handler.Handle(ctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "job_failed")
		w.logger.Error(ctx, "training job failed",
			logger.String("job_id", j.JobID),
			logger.Error(err),
		)
	}
}
