package listener

import (
	"sync"

	"github.com/hugolhafner/easyflow/errorhandler"
	"github.com/hugolhafner/easyflow/logger"
	flowotel "github.com/hugolhafner/easyflow/otel"
	"github.com/hugolhafner/easyflow/plugins/zaplogger"
	"github.com/hugolhafner/easyflow/pool"
)

type Config struct {
	Logger       logger.Logger
	Telemetry    *flowotel.Telemetry
	ErrorHandler errorhandler.Handler

	// Lock is held for the duration of every callback invocation and
	// released before the loop waits again.
	Lock sync.Locker
	Pool *pool.Pool
}

// defaultConfig logs warnings and errors to stderr, so the diagnostic of a
// failed loop reaches an operator even when no logger is configured.
func defaultConfig() Config {
	l, err := zaplogger.NewStderr(logger.WarnLevel)
	if err != nil {
		l = logger.NewNoopLogger()
	}

	return Config{
		Logger:       l,
		Telemetry:    flowotel.Noop(),
		ErrorHandler: errorhandler.Fail(),
		Lock:         nopLocker{},
		Pool:         pool.Default(),
	}
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithTelemetry(t *flowotel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// WithErrorHandler decides what a callback error does to the loop. The
// default stops the listener on the first error.
func WithErrorHandler(h errorhandler.Handler) Option {
	return func(c *Config) {
		if h != nil {
			c.ErrorHandler = h
		}
	}
}

// WithExecutionLock serialises callbacks with other work guarded by lock,
// for hosts whose state must only be touched by one goroutine at a time.
func WithExecutionLock(lock sync.Locker) Option {
	return func(c *Config) {
		if lock != nil {
			c.Lock = lock
		}
	}
}

func WithPool(p *pool.Pool) Option {
	return func(c *Config) {
		if p != nil {
			c.Pool = p
		}
	}
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
