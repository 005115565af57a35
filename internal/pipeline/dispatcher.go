package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"chronicle/internal/logging"
	"chronicle/internal/services"
)

// Dispatcher feeds session ids to a fixed pool of pipeline workers. Submit is
// non-blocking; a full queue is reported to the caller rather than buffered
// without bound.
type Dispatcher struct {
	processor *Processor
	logger    *slog.Logger
	jobs      chan string
	workers   int

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

const jobQueueDepth = 16

func NewDispatcher(processor *Processor, workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
		jobs:      make(chan string, jobQueueDepth),
		workers:   workers,
	}
}

// Start launches the worker pool. Workers exit when the context ends or the
// queue is closed by Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("pipeline workers started", logging.Int("worker_count", d.workers))
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger := d.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case sessionID, ok := <-d.jobs:
			if !ok {
				return
			}
			if err := d.processor.Process(ctx, sessionID); err != nil {
				logger.Error("session processing failed",
					logging.String(logging.FieldSessionID, sessionID),
					logging.Error(err),
				)
			}
		}
	}
}

// Submit queues a session for processing.
func (d *Dispatcher) Submit(sessionID string) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return services.Wrap(services.ErrValidation, "pipeline", "submit", "dispatcher is stopped", nil)
	}
	d.mu.Unlock()

	select {
	case d.jobs <- sessionID:
		return nil
	default:
		return services.Wrap(services.ErrTransient, "pipeline", "submit", "processing queue is full", nil)
	}
}

// Stop closes the queue and waits for in-flight work to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info("pipeline workers stopped")
}
