package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/metrics"
)

type queued struct {
	ctx context.Context
	job Job
}

// Pool is the in-process scheduler: a fixed set of workers reading a
// buffered queue. When the queue is full the job gets its own goroutine
// rather than being dropped or blocking the webhook response.
type Pool struct {
	handler Handler
	timeout time.Duration
	workers int
	log     *zap.Logger

	queue chan queued
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, queueSize int, timeout time.Duration, h Handler, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		handler: h,
		timeout: timeout,
		workers: workers,
		log:     log,
		queue:   make(chan queued, queueSize),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for q := range p.queue {
				p.run(q.ctx, q.job)
			}
		}()
	}
}

// Schedule detaches the job from the request: cancellation of ctx does not
// reach it, but trace context and values do.
func (p *Pool) Schedule(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	q := queued{ctx: context.WithoutCancel(ctx), job: job}
	select {
	case p.queue <- q:
	default:
		p.log.Warn("task queue full, running job on its own goroutine", zap.String("job_id", job.ID))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(q.ctx, q.job)
		}()
	}
	return nil
}

func (p *Pool) run(ctx context.Context, job Job) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log := logging.L(ctx, p.log).With(zap.String("job_id", job.ID), zap.String("invoice_id", job.InvoiceID))

	defer func() {
		if r := recover(); r != nil {
			metrics.TaskFailures.WithLabelValues("inline").Inc()
			log.Error("task panicked", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := p.handler(ctx, job); err != nil {
		metrics.TaskFailures.WithLabelValues("inline").Inc()
		log.Error("task failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("task finished", zap.Duration("took", time.Since(start)))
}

// Stop refuses new jobs and waits for queued and running ones, or until
// ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
