package host

import (
	"io"
	"log/slog"

	"github.com/reglet-dev/sdf-http/hostfuncs"
)

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithHostFunctions configures the executor with a host function registry.
// The executor closes it in Close.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(e *Executor) {
		e.registry = registry
	}
}

// WithLogger sets the logger guest log records and runtime diagnostics are
// written to. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithStdout forwards the guest's stdout to w. Discarded by default.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) {
		e.stdout = w
	}
}

// WithStderrLimit bounds the guest stderr kept in RunResult.Stderr.
// Defaults to hostfuncs.DefaultMaxOutputSize.
func WithStderrLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.stderrLimit = n
		}
	}
}
