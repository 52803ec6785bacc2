package transport

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultChunkSize bounds a single read from the response body stream (1 MiB).
const DefaultChunkSize = 1024 * 1024

// MaxChunkSize is the largest accepted WithChunkSize value (64 MiB).
const MaxChunkSize = 64 * 1024 * 1024

type driverConfig struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider

	ChunkSize uint64 `validate:"gte=1,lte=67108864"`
}

func defaultDriverConfig() driverConfig {
	return driverConfig{
		ChunkSize: DefaultChunkSize,
	}
}

// Option configures a Driver.
type Option func(*driverConfig)

// WithChunkSize sets the maximum number of bytes requested per body read.
func WithChunkSize(n uint64) Option {
	return func(c *driverConfig) {
		c.ChunkSize = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default() at send time.
func WithLogger(l *slog.Logger) Option {
	return func(c *driverConfig) {
		c.logger = l
	}
}

// WithTracerProvider sets the provider used for exchange spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *driverConfig) {
		c.tracerProvider = tp
	}
}

func (c *driverConfig) tracer() trace.Tracer {
	tp := c.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func (c *driverConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
