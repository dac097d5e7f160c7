package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const dequeueErrorDelay = time.Second

// Runner executes one batch run.
type Runner interface {
	Run(ctx context.Context, batchID uuid.UUID) error
}

// WorkerPool consumes batch ids from a queue. Each worker runs one batch at a time,
// so distinct batches are processed concurrently and items of a batch sequentially.
type WorkerPool struct {
	queue       Queue
	runner      Runner
	concurrency int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool of concurrency workers.
func NewWorkerPool(queue Queue, runner Runner, concurrency int) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{queue: queue, runner: runner, concurrency: concurrency}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	slog.Info("batch workers started", "concurrency", p.concurrency)
}

// Stop cancels the workers and waits for them to return. An interrupted batch stays
// RUNNING with its remaining items pending, and can be run again.
func (p *WorkerPool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	slog.Info("batch workers stopped")
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for {
		batchID, found, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			slog.Error("failed to dequeue batch", "worker", id, "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(dequeueErrorDelay):
			}
			continue
		}
		if !found {
			continue
		}

		slog.Info("batch picked up", "worker", id, "batchID", batchID)
		err = p.runner.Run(p.ctx, batchID)
		switch {
		case err == nil:
		case errors.Is(err, ErrBatchInProgress):
			slog.Info("duplicate batch dropped", "worker", id, "batchID", batchID)
		default:
			slog.Error("batch run failed", "worker", id, "batchID", batchID, "error", err)
		}
	}
}

// Dispatcher hands created batches to the workers.
type Dispatcher struct {
	queue Queue
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// Dispatch enqueues batchID for asynchronous processing.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID uuid.UUID) error {
	if batchID == uuid.Nil {
		return ErrInvalidBatchID
	}
	if err := d.queue.Enqueue(ctx, batchID); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue batch", "batchID", batchID, "error", err)
		return err
	}
	slog.InfoContext(ctx, "batch enqueued", "batchID", batchID)
	return nil
}
