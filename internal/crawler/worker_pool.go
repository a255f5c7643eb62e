package crawler

import (
	"context"
	"errors"
	"sync"
)

type job func(ctx context.Context)

// WorkerPool runs submitted jobs on a fixed number of goroutines.
// Jobs are never cancelled by the pool; Close waits for every queued job.
type WorkerPool struct {
	ctx  context.Context
	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorkerPool creates a pool with the given concurrency and queue size.
func NewWorkerPool(parent context.Context, concurrency, queueSize int) (*WorkerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	pool := &WorkerPool{
		ctx:  parent,
		jobs: make(chan job, queueSize),
	}
	pool.start(concurrency)
	return pool, nil
}

func (p *WorkerPool) start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range p.jobs {
				fn(p.ctx)
			}
		}()
	}
}

// Submit schedules a job, blocking while the queue is full. Must not be called after Close.
func (p *WorkerPool) Submit(ctx context.Context, fn job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- fn:
		return nil
	}
}

// Close stops accepting jobs and waits for queued and running jobs to finish.
func (p *WorkerPool) Close() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
