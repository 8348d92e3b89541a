// Package pool runs long-lived tasks, such as listener delivery loops, and
// hands back a consume-once handle to each task's result.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hugolhafner/easyflow/logger"
	"golang.org/x/sync/semaphore"
)

type Task func() error

type Config struct {
	// MaxConcurrency caps how many tasks run at once. Tasks beyond the cap
	// queue until a slot frees up. Zero means no cap.
	MaxConcurrency int64
	Logger         logger.Logger
}

func defaultConfig() Config {
	return Config{
		Logger: logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithMaxConcurrency(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxConcurrency = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

type Pool struct {
	sem    *semaphore.Weighted
	logger logger.Logger

	active    atomic.Int64
	submitted atomic.Int64
}

func New(opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		logger: cfg.Logger.With("component", "pool"),
	}
	if cfg.MaxConcurrency > 0 {
		p.sem = semaphore.NewWeighted(cfg.MaxConcurrency)
	}
	return p
}

var defaultPool = sync.OnceValue(func() *Pool { return New() })

// Default returns the process-wide pool. It is built on first use and never
// shut down.
func Default() *Pool {
	return defaultPool()
}

// Submit schedules task and returns immediately.
func (p *Pool) Submit(task Task) *Handle {
	h := newHandle()
	id := p.submitted.Add(1)

	go func() {
		defer close(h.done)

		if p.sem != nil {
			// background context: acquisition only fails on cancellation
			_ = p.sem.Acquire(context.Background(), 1)
			defer p.sem.Release(1)
		}

		p.active.Add(1)
		defer p.active.Add(-1)

		p.logger.Debug("Task started", "task", id)
		h.err = p.run(task)
		p.logger.Debug("Task finished", "task", id, "error", h.err)
	}()

	return h
}

func (p *Pool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	return task()
}

// Active reports how many tasks are currently running.
func (p *Pool) Active() int64 {
	return p.active.Load()
}
