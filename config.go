package easyflow

import (
	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/logger"
	flowotel "github.com/hugolhafner/easyflow/otel"
	"github.com/hugolhafner/easyflow/plugins/zaplogger"
	"github.com/hugolhafner/easyflow/pool"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *flowotel.Telemetry
	Pool      *pool.Pool

	// Transport overrides the transport described by the graph file.
	Transport link.Transport
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithTelemetry(t *flowotel.Telemetry) ConfigOption {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// WithPool runs the graph's listeners on p instead of the process-wide pool.
func WithPool(p *pool.Pool) ConfigOption {
	return func(c *Config) {
		if p != nil {
			c.Pool = p
		}
	}
}

// WithTransport makes the graph use t for every edge. The graph closes t when
// it is closed.
func WithTransport(t link.Transport) ConfigOption {
	return func(c *Config) {
		c.Transport = t
	}
}

// defaultConfig logs warnings and errors to stderr, so listener failures are
// visible to an operator who configured nothing.
func defaultConfig() Config {
	l, err := zaplogger.NewStderr(logger.WarnLevel)
	if err != nil {
		l = logger.NewNoopLogger()
	}

	return Config{
		Logger:    l,
		Telemetry: flowotel.Noop(),
		Pool:      pool.Default(),
	}
}
