package host

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/reglet-dev/sdf-http/hostfuncs"
	adapter "github.com/reglet-dev/sdf-http/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// Executor runs WASM guest commands. Guests share one runtime and one registry;
// each Run instantiates a fresh module with its own capability handles, which
// are released when the run ends.
type Executor struct {
	runtime     wazero.Runtime
	registry    *hostfuncs.HandlerRegistry
	logger      *slog.Logger
	stdout      io.Writer
	stderrLimit int
}

// RunResult describes a finished guest.
type RunResult struct {
	Stderr          string
	ExitCode        uint32
	StderrTruncated bool
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{
		stdout:      io.Discard,
		stderrLimit: hostfuncs.DefaultMaxOutputSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	// Default registry if not provided
	if e.registry == nil {
		reg, err := hostfuncs.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		e.registry = reg
	}

	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	e.runtime = rt

	if err := adapter.RegisterWithRuntime(ctx, rt, e.registry,
		adapter.WithCustomHandler(adapter.LogHandler(e.logger)),
	); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Close releases the runtime and the registry's handles.
func (e *Executor) Close(ctx context.Context) error {
	return errors.Join(e.runtime.Close(ctx), e.registry.Close())
}

// Run compiles and runs wasmBytes as a WASI command named name. args follow the
// program name in the guest's argv. A non-zero exit is reported in the result,
// not as an error.
func (e *Executor) Run(ctx context.Context, name string, wasmBytes []byte, args ...string) (*RunResult, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}
	defer compiled.Close(ctx)

	// Instance names must be unique within the runtime; the name also scopes the
	// guest's capability handles.
	instance := name + "-" + uuid.NewString()
	stderr := hostfuncs.NewBoundedBuffer(e.stderrLimit)
	cfg := wazero.NewModuleConfig().
		WithName(instance).
		WithArgs(append([]string{name}, args...)...).
		WithStdout(e.stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	ctx = adapter.WithGuestName(ctx, name)
	ctx = hostfuncs.WithScope(ctx, instance)
	e.logger.DebugContext(ctx, "host: starting guest", "guest", name, "args", len(args))
	defer func() {
		if n := e.registry.ReleaseScope(instance); n > 0 {
			e.logger.WarnContext(ctx, "host: guest exited with open handles", "guest", name, "handles", n)
		}
	}()

	result := &RunResult{}
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run guest %q: %w", name, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	result.Stderr = stderr.String()
	result.StderrTruncated = stderr.Truncated()
	e.logger.DebugContext(ctx, "host: guest finished", "guest", name, "exit_code", result.ExitCode)
	return result, nil
}
