package native

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds one exchange from dispatch to the end of the body.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxBodySize caps the number of response body bytes delivered to the
	// guest (10 MB). Zero disables the cap.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultReadBufferSize is the size of each read from the network body.
	DefaultReadBufferSize = 32 * 1024
)

// Option configures a Host.
type Option func(*hostConfig)

type hostConfig struct {
	client  *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	guard   *addressGuard

	RequestTimeout time.Duration `validate:"gte=0"`
	MaxBodySize    int64         `validate:"gte=0"`
	ReadBufferSize int           `validate:"gte=512,lte=16777216"`
	RateLimit      float64       `validate:"gte=0"`
	RateBurst      int           `validate:"gte=0"`
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		RequestTimeout: DefaultRequestTimeout,
		MaxBodySize:    DefaultMaxBodySize,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden:
// the host never follows redirects.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *hostConfig) {
		cfg.client = c
	}
}

// WithRequestTimeout sets the per-exchange timeout. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *hostConfig) {
		cfg.RequestTimeout = d
	}
}

// WithMaxBodySize sets the response body cap in bytes. Zero disables it.
func WithMaxBodySize(n int64) Option {
	return func(cfg *hostConfig) {
		cfg.MaxBodySize = n
	}
}

// WithReadBufferSize sets the size of each network read.
func WithReadBufferSize(n int) Option {
	return func(cfg *hostConfig) {
		cfg.ReadBufferSize = n
	}
}

// WithRateLimit throttles dispatch to rps exchanges per second with the given
// burst. Exchanges wait for a token after submission, so Handle never blocks.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *hostConfig) {
		cfg.RateLimit = rps
		cfg.RateBurst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *hostConfig) {
		cfg.logger = l
	}
}

// WithAddressGuard resolves each target once, rejects blocked addresses and
// pins the connection to the resolved IP. Loopback and private ranges are
// blocked unless allowPrivate is set.
func WithAddressGuard(allowPrivate bool, opts ...GuardOption) Option {
	return func(cfg *hostConfig) {
		g := defaultGuard()
		if allowPrivate {
			g.blockPrivate = false
			g.blockLoopback = false
		}
		for _, opt := range opts {
			opt(g)
		}
		cfg.guard = g
	}
}

func (c *hostConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
