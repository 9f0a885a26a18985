// Package task runs fire-and-forget side effects (GitHub star push, feed
// reconciliation) on a fixed set of workers behind a bounded queue.
//
// A task's error only ever reaches the pool's logger. Submit never blocks the
// caller: when the queue is full the task is dropped and a warning logged,
// because every task here is repaired later by a periodic job.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is one unit of background work.
type Func func(ctx context.Context) error

// Submitter is what the services depend on.
type Submitter interface {
	Submit(name string, fn Func) bool
}

// Config sizes the pool.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultConfig is used by the server.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256, TaskTimeout: 15 * time.Second}
}

type job struct {
	name string
	fn   Func
}

// Pool is a bounded worker pool.
type Pool struct {
	config    Config
	logger    *slog.Logger
	jobs      chan job
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.RWMutex
	stopped bool
}

var _ Submitter = (*Pool)(nil)

// NewPool creates a pool. Call Start before submitting.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	return &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan job, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting task pool",
			slog.Int("workers", p.config.Workers),
			slog.Int("queueSize", p.config.QueueSize),
		)
		for i := 0; i < p.config.Workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop stops accepting work, lets the workers finish what is queued and
// waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down task pool", slog.Int("queued", len(p.jobs)))
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.done)
		p.wg.Wait()
	})
}

// Submit enqueues fn without blocking. It reports false when the task was
// dropped because the queue is full or the pool is stopped.
func (p *Pool) Submit(name string, fn Func) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("task dropped: pool stopped", slog.String("task", name))
		return false
	}

	select {
	case p.jobs <- job{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn("task dropped: queue full", slog.String("task", name))
		return false
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			p.run(j)
		case <-p.done:
			// Drain whatever was queued before Stop.
			for {
				select {
				case j := <-p.jobs:
					p.run(j)
				default:
					return
				}
			}
		}
	}
}

// run executes one job under its own timeout. The context is not derived
// from any request, so a finished request never cancels its side effects.
func (p *Pool) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := p.safeCall(ctx, j)
	if err != nil {
		p.logger.Warn("task failed",
			slog.String("task", j.name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	p.logger.Debug("task finished", slog.String("task", j.name), slog.Duration("duration", time.Since(start)))
}

func (p *Pool) safeCall(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.fn(ctx)
}
