// Package jobs runs flowdeck's background work: a bounded local queue with
// a small worker pool. Durable execution lives in the external workflow
// engine; this dispatcher only covers in-process fan-out and the AI
// generation call itself.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the queue cannot accept another job.
	ErrQueueFull = errors.New("job queue full")

	// ErrClosed is returned when the dispatcher is shutting down.
	ErrClosed = errors.New("dispatcher closed")
)

// Kind identifies a job type.
type Kind string

// KindGenerate asks for AI-generated text for one workflow.
const KindGenerate Kind = "workflow.generate"

// Job is one unit of background work.
type Job struct {
	ID         string
	Kind       Kind
	WorkflowID string
	// RequestedBy is the principal that triggered the job.
	RequestedBy string
	EnqueuedAt  time.Time
}

// Handler executes a job and reports its outcome as a Result.
type Handler interface {
	Handle(ctx context.Context, job Job) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job Job) Result {
	return f(ctx, job)
}

// Dispatcher fans jobs out to a worker pool.
type Dispatcher struct {
	handler Handler
	onDone  func(Result)
	logger  *slog.Logger

	queue   chan Job
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the worker count. Default: 4.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue depth. Default: 64.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Job, n)
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// OnDone registers the continuation run with every job's Result.
// It executes on a worker goroutine and must not block for long.
func OnDone(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onDone = fn }
}

// NewDispatcher creates a dispatcher; call Start before enqueueing.
func NewDispatcher(handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		logger:  slog.Default(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan Job, 64)
	}
	return d
}

// Start launches the worker pool. ctx cancels in-flight handlers on
// shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Enqueue submits a job. Returns ErrQueueFull when the queue is at
// capacity and ErrClosed after Close — submission never blocks.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	select {
	case d.queue <- job:
		d.logger.Debug("job enqueued", "job", job.ID, "kind", job.Kind)
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake, drains queued jobs and waits for workers to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		start := time.Now()
		result := d.handler.Handle(ctx, job)
		if result.Ok() {
			d.logger.Info("job done",
				"job", job.ID, "kind", job.Kind, "took", time.Since(start))
		} else {
			d.logger.Error("job failed",
				"job", job.ID, "kind", job.Kind, "err", result.Err())
		}
		if d.onDone != nil {
			d.onDone(result)
		}
	}
}
