package wasm

import "log/slog"

type hostConfig struct {
	logger *slog.Logger
	// maxGuestMemory bounds the linear memory pinned for calls in flight. Zero
	// keeps the abi default.
	maxGuestMemory int
}

// Option configures a Host.
type Option func(*hostConfig)

// WithLogger sets the logger for failures the port signatures cannot return.
// Defaults to slog.Default(), which a guest usually points at the log_message
// import.
func WithLogger(l *slog.Logger) Option {
	return func(c *hostConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxGuestMemory limits the guest memory pinned for payloads and host
// results at any one time. A request body travels in a single call, so the
// limit must exceed the largest body plus its encoding overhead.
func WithMaxGuestMemory(n int) Option {
	return func(c *hostConfig) {
		if n > 0 {
			c.maxGuestMemory = n
		}
	}
}

func newHostConfig(opts []Option) hostConfig {
	var cfg hostConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}
