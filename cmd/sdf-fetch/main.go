// Command sdf-fetch performs one HTTP exchange through the blocking client,
// backed by the native host transport, and prints the response.
//
//	sdf-fetch [-X method] [-H 'Key: value']... [-d body] [-timeout 30s] [-i] URL
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	sdfhttp "github.com/reglet-dev/sdf-http"
	"github.com/reglet-dev/sdf-http/application/transport"
	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/infrastructure/native"
)

// headerFlags collects repeated -H values.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	if !strings.Contains(v, ":") {
		return fmt.Errorf("header %q: want 'Key: value'", v)
	}
	*h = append(*h, v)
	return nil
}

func (h headerFlags) header() http.Header {
	out := http.Header{}
	for _, v := range h {
		key, value, _ := strings.Cut(v, ":")
		out.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return out
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sdf-fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var headers headerFlags
	method := fs.String("X", http.MethodGet, "request method")
	body := fs.String("d", "", "request body")
	timeout := fs.Duration("timeout", native.DefaultRequestTimeout, "exchange timeout enforced by the host")
	include := fs.Bool("i", false, "print the status line and response headers")
	verbose := fs.Bool("v", false, "debug logging")
	allowPrivate := fs.Bool("allow-private", true, "allow loopback and private destinations")
	fs.Var(&headers, "H", "request header 'Key: value' (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: sdf-fetch [flags] URL")
		fs.PrintDefaults()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	host, err := native.New(
		native.WithLogger(logger),
		native.WithRequestTimeout(*timeout),
		native.WithAddressGuard(*allowPrivate),
	)
	if err != nil {
		logger.Error("sdf-fetch: creating host", "error", err)
		return 1
	}
	client, err := sdfhttp.NewClient(host, transport.WithLogger(logger))
	if err != nil {
		logger.Error("sdf-fetch: creating client", "error", err)
		return 1
	}

	req := ports.HTTPRequest{
		Method:  strings.ToUpper(*method),
		URL:     fs.Arg(0),
		Headers: headers.header(),
	}
	if *body != "" {
		req.Body = []byte(*body)
	}

	start := time.Now()
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		detail := sdkerrors.ToErrorDetail(err)
		args := []any{"type", detail.Type, "kind", detail.Code, "error", err}
		var te *ports.TransportError
		if errors.As(err, &te) {
			args = append(args, "transport_code", te.Code)
		}
		logger.Error("sdf-fetch: exchange failed", args...)
		return 1
	}
	logger.Debug("sdf-fetch: done", "status", resp.StatusCode, "bytes", len(resp.Body), "took", time.Since(start))

	if *include {
		fmt.Fprintf(stdout, "%s %d %s\n", resp.Proto, resp.StatusCode, http.StatusText(resp.StatusCode))
		_ = resp.Headers.Write(stdout)
		fmt.Fprintln(stdout)
	}
	_, _ = stdout.Write(resp.Body)
	if resp.StatusCode >= 400 {
		return 22
	}
	return 0
}
