// Command sdf-host runs a WASI guest command with the sdf_http host module, so
// that the guest's HTTP client performs real exchanges through this process.
//
//	sdf-host [-timeout 30s] [-v] guest.wasm [guest args...]
//	sdf-host -schema
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/sdf-http/application/schema"
	"github.com/reglet-dev/sdf-http/host"
	"github.com/reglet-dev/sdf-http/hostfuncs"
	"github.com/reglet-dev/sdf-http/infrastructure/native"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sdf-host", flag.ContinueOnError)
	fs.SetOutput(stderr)
	printSchema := fs.Bool("schema", false, "print the JSON schema of the host ABI messages and exit")
	timeout := fs.Duration("timeout", native.DefaultRequestTimeout, "per-exchange timeout")
	maxBody := fs.Int64("max-body", native.DefaultMaxBodySize, "response body cap in bytes, 0 for none")
	rps := fs.Float64("rate", 0, "exchanges per second allowed to the guest, 0 for unlimited")
	blockPrivate := fs.Bool("block-private", false, "refuse loopback and private destinations")
	verbose := fs.Bool("v", false, "debug logging, including every host call")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *printSchema {
		data, err := schema.WireSchema()
		if err != nil {
			fmt.Fprintln(stderr, "sdf-host:", err)
			return 1
		}
		_, _ = stdout.Write(append(data, '\n'))
		return 0
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: sdf-host [flags] guest.wasm [args...]")
		fs.PrintDefaults()
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	path := fs.Arg(0)
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		logger.Error("sdf-host: reading guest", "path", path, "error", err)
		return 1
	}

	nativeOpts := []native.Option{
		native.WithLogger(logger),
		native.WithRequestTimeout(*timeout),
		native.WithMaxBodySize(*maxBody),
		native.WithAddressGuard(!*blockPrivate),
	}
	if *rps > 0 {
		nativeOpts = append(nativeOpts, native.WithRateLimit(*rps, 1))
	}
	nativeHost, err := native.New(nativeOpts...)
	if err != nil {
		logger.Error("sdf-host: creating transport", "error", err)
		return 1
	}

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(logger),
		),
		hostfuncs.WithBundle(hostfuncs.HTTPBundle(nativeHost)),
	)
	if err != nil {
		logger.Error("sdf-host: creating registry", "error", err)
		return 1
	}

	ctx := context.Background()
	executor, err := host.NewExecutor(ctx,
		host.WithHostFunctions(registry),
		host.WithLogger(logger),
		host.WithStdout(stdout),
	)
	if err != nil {
		logger.Error("sdf-host: creating executor", "error", err)
		return 1
	}
	defer executor.Close(ctx)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res, err := executor.Run(ctx, name, wasmBytes, fs.Args()[1:]...)
	if err != nil {
		logger.Error("sdf-host: running guest", "guest", name, "error", err)
		return 1
	}
	if res.Stderr != "" {
		_, _ = io.WriteString(stderr, res.Stderr)
	}
	if res.StderrTruncated {
		logger.Warn("sdf-host: guest stderr truncated", "guest", name)
	}
	return int(res.ExitCode)
}
