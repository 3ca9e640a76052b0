package converter

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
	"github.com/harliandi/go-avif/pkg/metrics"
)

var (
	// ErrPoolBusy is returned when the worker pool is at capacity
	ErrPoolBusy = errors.New("worker pool is busy, please retry later")
	// ErrPoolStopped is returned for submissions after Stop
	ErrPoolStopped = errors.New("worker pool is stopped")
)

const submitRetries = 3

// Job represents a conversion job
type Job struct {
	ctx     context.Context
	input   Input
	options avif.EncodingOptions
	result  chan<- jobResult
}

type jobResult struct {
	res *Result
	err error
}

// WorkerPool runs conversions on a fixed number of goroutines with a
// bounded queue.
type WorkerPool struct {
	conv    *Converter
	jobs    chan Job
	workers int
	active  atomic.Int64
	wg      sync.WaitGroup
	start   sync.Once
	stop    sync.Once
	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(conv *Converter, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		conv:    conv,
		jobs:    make(chan Job, workers*2),
		workers: workers,
	}
}

// Start starts the worker pool goroutines
func (p *WorkerPool) Start() {
	p.start.Do(func() {
		slog.Info("starting worker pool", "workers", p.workers)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		// The submitter may have given up while the job was queued.
		if err := job.ctx.Err(); err != nil {
			job.result <- jobResult{err: err}
			continue
		}

		p.active.Add(1)
		p.updateMetrics()
		res, err := p.conv.Convert(job.ctx, job.input, job.options)
		p.active.Add(-1)
		p.updateMetrics()

		select {
		case job.result <- jobResult{res: res, err: err}:
		default:
			slog.Warn("dropping conversion result", "worker", id)
		}
	}
}

// Submit queues a conversion and waits for its result. It returns
// ErrPoolBusy immediately when the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, in Input, opts avif.EncodingOptions) (*Result, error) {
	p.Start()

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}

	resultChan := make(chan jobResult, 1)
	job := Job{ctx: ctx, input: in, options: opts, result: resultChan}

	select {
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	case p.jobs <- job:
		p.mu.RUnlock()
		p.updateMetrics()
	default:
		p.mu.RUnlock()
		return nil, ErrPoolBusy
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultChan:
		return r.res, r.err
	}
}

// SubmitWithRetry submits a job to the worker pool with retry on busy
func (p *WorkerPool) SubmitWithRetry(ctx context.Context, in Input, opts avif.EncodingOptions, maxRetries int) (*Result, error) {
	lastErr := ErrPoolBusy
	for i := 0; i < maxRetries; i++ {
		res, err := p.Submit(ctx, in, opts)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrPoolBusy) {
			return nil, err
		}
		lastErr = err

		// linear backoff
		wait := time.Duration(i+1) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// Convert runs a conversion on the pool, retrying briefly while it is busy.
func (p *WorkerPool) Convert(ctx context.Context, in Input, opts avif.EncodingOptions) (*Result, error) {
	return p.SubmitWithRetry(ctx, in, opts, submitRetries)
}

// Info does no encoding and is answered on the caller's goroutine.
func (p *WorkerPool) Info(in Input) (ImageInfo, error) {
	return p.conv.Info(in)
}

// Decode is answered on the caller's goroutine; decoding never runs a
// quality search, so it does not compete for workers.
func (p *WorkerPool) Decode(ctx context.Context, in Input) (image.Image, error) {
	return p.conv.Decode(ctx, in)
}

// Codec reports the codec the underlying converter selects.
func (p *WorkerPool) Codec() (codec.Codec, error) {
	return p.conv.Codec()
}

// Stop drains queued jobs and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.stop.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		p.updateMetrics()
		slog.Info("worker pool stopped")
	})
}

// Stats returns the number of running and queued jobs.
func (p *WorkerPool) Stats() (active, queued int) {
	return int(p.active.Load()), len(p.jobs)
}

func (p *WorkerPool) updateMetrics() {
	active, queued := p.Stats()
	metrics.UpdateWorkerPoolMetrics(queued, active)
}
