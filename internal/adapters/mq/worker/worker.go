// Package worker drains the change queue and recomputes analytics for the
// players it names.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gameradar/internal/adapters/mq/queue"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Recomputer rebuilds the analytics snapshot of one player.
type Recomputer interface {
	Recompute(ctx context.Context, playerID string) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes change events.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the event in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing events.
type InMemoryWorker struct {
	queue      Queue
	recomputer Recomputer
	name       string

	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, recomputer Recomputer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		recomputer: recomputer,
		name:       "worker",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing change event", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// processEvent recomputes the player named by event. Failures stay with this
// event; the worker moves on to the next one.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error {
	if err := w.recomputer.Recompute(ctx, event.PlayerID); err != nil {
		metrics.RecordErrorByComponent("worker", "recompute_error")
		return fmt.Errorf("recompute for event %s (player %s): %w", event.EventID, event.PlayerID, err)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	started atomic.Bool
	logger  logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, recomputer Recomputer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, recomputer, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.started.Store(true)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Serve runs the pool until ctx is canceled, then drains it. It lets a
// supervisor own the pool's lifetime. Workers run on their own context so
// events already queued when ctx ends are still recomputed.
func (p *Pool) Serve(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	p.Start(workCtx)
	<-ctx.Done()
	// Drained on a fresh context: ctx is already done.
	if err := p.Shutdown(context.Background()); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown closes the queue and waits, up to ctx or the pool timeout, for
// the workers to recompute what was still queued. Workers still busy at the
// deadline are stopped after their event in flight.
func (p *Pool) Shutdown(ctx context.Context) error {
	closer, drains := p.queue.(interface{ Close() error })
	if drains {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
			drains = false
		}
	}

	if !p.started.Load() {
		metrics.UpdateWorkerCount(0)
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	if drains {
		for i, w := range p.workers {
			select {
			case <-w.Done():
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			}
		}
	}

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}

// String names the pool for supervisor logs.
func (p *Pool) String() string { return "recompute-workers" }
