package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/promotion-consumer/internal/jobs"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("pool is closed")
	// ErrAwaitTimeout is returned by Shutdown when tasks are still running
	// after the await-termination period.
	ErrAwaitTimeout = errors.New("pool did not terminate in time")
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	// CoreSize workers are kept alive for the lifetime of the pool.
	CoreSize int
	// MaxSize bounds the number of workers. Workers above CoreSize are
	// started only when the queue is full.
	MaxSize int
	// QueueCapacity bounds the number of tasks waiting for a worker.
	QueueCapacity int
	// KeepAlive is how long a worker above CoreSize may stay idle.
	KeepAlive time.Duration
	// AwaitTermination bounds how long Shutdown waits; zero waits for ctx only.
	AwaitTermination time.Duration
}

func (c PoolConfig) normalized() PoolConfig {
	if c.CoreSize < 1 {
		c.CoreSize = 1
	}
	if c.MaxSize < c.CoreSize {
		c.MaxSize = c.CoreSize
	}
	if c.QueueCapacity < 0 {
		c.QueueCapacity = 0
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = time.Minute
	}
	return c
}

// Pool is a bounded worker pool. A task is handed, in order of preference,
// to a new core worker, to the queue, or to a new non-core worker. When all
// three are exhausted the task runs on the submitting goroutine, which
// throttles the submitter to the pool's pace.
type Pool struct {
	cfg   PoolConfig
	tasks chan func()

	mu      sync.Mutex
	workers int
	closed  bool
	wg      sync.WaitGroup

	completed  atomic.Int64
	callerRuns atomic.Int64
}

// NewPool creates a pool. Workers start lazily on Submit.
func NewPool(cfg PoolConfig) *Pool {
	cfg = cfg.normalized()
	return &Pool{
		cfg:   cfg,
		tasks: make(chan func(), cfg.QueueCapacity),
	}
}

// Submit schedules task. It returns ErrPoolClosed after Shutdown.
func (p *Pool) Submit(task func()) error {
	if _, err := p.submit(task); err != nil {
		return err
	}
	return nil
}

// TrySubmit is Submit that also reports whether the task ran on the caller.
func (p *Pool) TrySubmit(task func()) (callerRan bool, err error) {
	return p.submit(task)
}

func (p *Pool) submit(task func()) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrPoolClosed
	}

	if p.workers < p.cfg.CoreSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return false, nil
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
		return false, nil
	default:
	}

	if p.workers < p.cfg.MaxSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return false, nil
	}
	p.mu.Unlock()

	p.callerRuns.Add(1)
	p.run(task)
	return true, nil
}

func (p *Pool) startWorkerLocked(first func()) {
	p.workers++
	p.wg.Add(1)
	go p.worker(first)
}

func (p *Pool) worker(first func()) {
	defer p.wg.Done()

	if first != nil {
		p.run(first)
	}

	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				p.exit()
				return
			}
			p.run(task)
		case <-idle.C:
			if p.retireIfSurplus() {
				return
			}
		}
		idle.Reset(p.cfg.KeepAlive)
	}
}

// retireIfSurplus stops the calling worker when more than CoreSize are alive.
func (p *Pool) retireIfSurplus() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers > p.cfg.CoreSize {
		p.workers--
		return true
	}
	return false
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
}

func (p *Pool) run(task func()) {
	defer p.completed.Add(1)
	task()
}

// Shutdown stops accepting tasks, lets queued tasks drain and waits for the
// workers to finish, bounded by AwaitTermination and ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var timeout <-chan time.Time
	if p.cfg.AwaitTermination > 0 {
		timer := time.NewTimer(p.cfg.AwaitTermination)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return nil
	case <-timeout:
		return ErrAwaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers    int
	Queued     int
	Completed  int64
	CallerRuns int64
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	return PoolStats{
		Workers:    workers,
		Queued:     len(p.tasks),
		Completed:  p.completed.Load(),
		CallerRuns: p.callerRuns.Load(),
	}
}

// Ensure Pool implements the Executor interface.
var _ jobs.Executor = (*Pool)(nil)
