//go:build !wasip1

package log

import (
	"context"
	"log/slog"
	"os"
)

// defaultSink writes records through a text handler on stderr, so the handler
// behaves sensibly in native builds and tests.
func defaultSink() Sink {
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return func(ctx context.Context, msg LogMessageWire) {
		_ = text.Handle(ctx, msg.Record())
	}
}
