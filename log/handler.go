// Package log provides an slog.Handler for WASM guests. Records are flattened
// into LogMessageWire and handed to a sink: inside a wasip1 guest the sink is
// the sdf_http.log_message host import, elsewhere it is a text handler on
// stderr. Hosts turn received messages back into records with Record.
package log

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
)

// Sink receives each serialized record.
type Sink func(ctx context.Context, msg LogMessageWire)

// WasmLogHandler implements slog.Handler by serializing records to LogMessageWire.
type WasmLogHandler struct {
	sink   Sink
	attrs  []LogAttrWire
	group  string
	config handlerConfig
}

// HandlerOption configures the WasmLogHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	sink      Sink
	level     slog.Leveler
	addSource bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
// Records below this level are filtered on the guest side.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file:line) as a "source" attribute.
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithSink replaces the default sink.
func WithSink(sink Sink) HandlerOption {
	return func(c *handlerConfig) {
		c.sink = sink
	}
}

// NewHandler creates a new WasmLogHandler with the given options.
func NewHandler(opts ...HandlerOption) *WasmLogHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	sink := cfg.sink
	if sink == nil {
		sink = defaultSink()
	}
	return &WasmLogHandler{sink: sink, config: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *WasmLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.config.level.Level()
}

// Handle serializes record and passes it to the sink.
func (h *WasmLogHandler) Handle(ctx context.Context, record slog.Record) error {
	msg := LogMessageWire{
		Context:   contextToWire(ctx),
		Level:     record.Level.String(),
		Message:   record.Message,
		Timestamp: record.Time,
		Attrs:     slices.Clone(h.attrs),
	}

	if h.config.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		msg.Attrs = append(msg.Attrs, LogAttrWire{
			Key:   slog.SourceKey,
			Type:  "string",
			Value: frame.File + ":" + strconv.Itoa(frame.Line),
		})
	}

	record.Attrs(func(attr slog.Attr) bool {
		msg.Attrs = appendAttr(msg.Attrs, h.group, attr)
		return true
	})

	h.sink(ctx, msg)
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *WasmLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.group, a)
	}
	return &next
}

// WithGroup returns a handler that qualifies later attribute keys with name.
// The wire format is flat, so groups become dotted key prefixes.
func (h *WasmLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

// appendAttr flattens groups into dotted keys and drops empty attributes.
func appendAttr(dst []LogAttrWire, prefix string, attr slog.Attr) []LogAttrWire {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, a := range attr.Value.Group() {
			dst = appendAttr(dst, groupPrefix, a)
		}
		return dst
	}
	wire := toLogAttrWire(attr)
	wire.Key = prefix + wire.Key
	return append(dst, wire)
}
