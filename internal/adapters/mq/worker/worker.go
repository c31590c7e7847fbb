// Package worker drains the snapshot queue into the model store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/fedrec/internal/adapters/mq/queue"
	"github.com/okian/fedrec/internal/adapters/repository"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Saver persists a snapshot.
type Saver interface {
	Save(ctx context.Context, state *model.GlobalModelState) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes persistence jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker saves snapshots read from the queue.
type InMemoryWorker struct {
	queue Queue
	saver Saver
	name  string

	// busy is shared across a pool to track active workers.
	busy *atomic.Int32
	size int

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		saver:    saver,
		name:     "persist-worker",
		busy:     &atomic.Int32{},
		size:     1,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns once the queue is closed and
// drained, ctx is canceled, or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Warn(ctx, "snapshot not persisted; in-memory model stays authoritative",
					logger.Any("version", job.State.Version),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of snapshots this worker saved.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of snapshots this worker could not save.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	active := int(w.busy.Add(1))
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(w.size - active)
	defer func() {
		active := int(w.busy.Add(-1))
		metrics.UpdateWorkerActiveCount(active)
		metrics.UpdateWorkerIdleCount(w.size - active)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	err := w.saver.Save(ctx, job.State)
	switch {
	case err == nil:
		w.processed.Add(1)
		w.logger.Debug(ctx, "snapshot persisted", logger.Any("version", job.State.Version))
		return nil
	case errors.Is(err, repository.ErrVersionExists):
		// already durable, e.g. restored at startup and re-queued
		w.processed.Add(1)
		return nil
	default:
		w.failed.Add(1)
		metrics.RecordPersistenceFailure()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "persist_failed")
		metrics.RecordErrorByType("persistence_warning", "warning")
		return fmt.Errorf("save version %d: %w", job.State.Version, err)
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int32
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing q and saver.
func NewPool(workerCount int, q Queue, saver Saver) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("persist-pool"),
	}
	for i := range p.workers {
		w := NewInMemoryWorker(q, saver, WithName("persist-worker-"+strconv.Itoa(i)))
		w.busy = &p.busy
		w.size = workerCount
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of snapshots saved by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns the number of snapshots that could not be saved.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and waits for workers to drain it. Workers
// still busy when ctx or the pool timeout expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			close(w.shutdown)
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("persistence pool: %w", shutdownCtx.Err())
	}
	return nil
}
