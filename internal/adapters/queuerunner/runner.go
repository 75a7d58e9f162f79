package queuerunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/itinerary/internal/observability/statsd"
)

// ErrSourceClosed is returned by a Source that will deliver nothing more.
var ErrSourceClosed = errors.New("message source closed")

// Source yields deliveries. Receive blocks until a delivery is available or ctx is done.
type Source interface {
	Receive(ctx context.Context) (Delivery, error)
}

// RunnerOptions configures the consumption loop.
type RunnerOptions struct {
	Source     Source
	Dispatcher Dispatcher

	Concurrency    int           // number of worker goroutines; defaults to 1
	ProcessTimeout time.Duration // per-delivery dispatch bound; defaults to 30s

	Metrics statsd.Sink
	Logger  *slog.Logger
}

// Runner pulls deliveries from a Source and processes them on a fixed set of workers.
type Runner struct {
	source     Source
	dispatcher Dispatcher
	workers    int
	timeout    time.Duration
	metrics    statsd.Sink
	logger     *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("source is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	timeout := opts.ProcessTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:     opts.Source,
		dispatcher: opts.Dispatcher,
		workers:    workers,
		timeout:    timeout,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "queue_runner"),
	}, nil
}

// Run starts worker goroutines and processes deliveries until ctx is cancelled, the source closes,
// or a worker hits a fatal source error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting queue runner", "workers", r.workers, "process_timeout", r.timeout)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for i := range r.workers {
		proc, err := NewProcessor(ProcessorOptions{
			Dispatcher: r.dispatcher,
			Timeout:    r.timeout,
			Metrics:    r.metrics,
			Logger:     r.logger.With("worker", i),
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, proc); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, proc *Processor) error {
	for ctx.Err() == nil {
		d, err := r.source.Receive(ctx)
		switch {
		case err == nil:
			proc.Process(ctx, d)
		case errors.Is(err, ErrSourceClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("receive: %w", err)
		}
	}
	return nil
}
