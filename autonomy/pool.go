package autonomy

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// Pool bounds concurrent run execution across submissions behind an
// in-process FIFO admission queue (spec.md §4.3 [AMBIENT]: concurrency
// inside one run is strictly sequential; across runs, a bounded worker pool
// pulls from a queue). Grounded on the teacher's orchestration.TaskWorkerPool:
// a fixed worker count draining a channel-backed queue, panic-recovering
// execution, and a cancellable Start/Stop lifecycle.
type Pool struct {
	workerCount int
	queueSize   int
	logger      core.Logger

	jobs    chan poolJob
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	active  atomic.Int32
}

type poolJob struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

// WithPoolLogger attaches a component-scoped logger.
func WithPoolLogger(logger core.Logger) PoolOption {
	return func(p *Pool) {
		if aware, ok := logger.(core.ComponentAwareLogger); ok {
			p.logger = aware.WithComponent("autonomy.pool")
			return
		}
		p.logger = logger
	}
}

// WithWorkerCount overrides the default `min(4, NumCPU())` worker count.
func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithQueueSize overrides the default admission queue depth (64).
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// defaultWorkerCount implements spec.md §4.3 [AMBIENT]'s `min(4, NumCPU())`.
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

// NewPool builds a stopped Pool; call Start to begin draining the queue.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workerCount: defaultWorkerCount(),
		queueSize:   64,
		logger:      &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately; workers run
// until ctx is canceled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.jobs = make(chan poolJob, p.queueSize)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
	p.logger.Info("worker pool started", map[string]interface{}{"worker_count": p.workerCount, "queue_size": p.queueSize})
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.active.Add(1)
			p.execute(job)
			p.active.Add(-1)
		}
	}
}

func (p *Pool) execute(job poolJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool job panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	job.fn(job.ctx)
}

// Submit enqueues fn for execution by a worker without blocking the caller.
// If the admission queue is full it returns a backpressure error immediately
// rather than waiting for room — spec.md §4.3 [AMBIENT]'s "backpressure
// rejection when full".
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	if !p.running.Load() {
		return fmt.Errorf("pool not started")
	}
	select {
	case p.jobs <- poolJob{ctx: ctx, fn: fn}:
		return nil
	default:
		return core.NewKernelError("Pool.Submit", core.ErrorKindBackpressure, core.ErrQueueFull)
	}
}

// ActiveCount reports how many workers are currently executing a job.
func (p *Pool) ActiveCount() int32 { return p.active.Load() }

// Stop cancels outstanding work and waits for in-flight jobs to return.
func (p *Pool) Stop() {
	if !p.running.Load() {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	p.wg.Wait()
	p.running.Store(false)
}
