// Package native implements the host transport capability in-process on top of
// net/http. Each submitted request runs on its own goroutine; pollables are
// backed by channels and condition variables so a blocked guest goroutine wakes
// as soon as the network makes progress.
package native

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/reglet-dev/sdf-http/application/config"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"
)

// Host is a ports.Host backed by an *http.Client. It is safe for concurrent use.
type Host struct {
	client *http.Client
	cfg    hostConfig
}

// Compile-time interface compliance check
var _ ports.Host = (*Host)(nil)

// New creates a Host.
func New(opts ...Option) (*Host, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("native host: %w", err)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = 1
		}
		cfg.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Host{client: buildClient(cfg), cfg: cfg}, nil
}

// buildClient returns a client that never follows redirects: a redirect is a
// response like any other and belongs to the caller.
func buildClient(cfg hostConfig) *http.Client {
	var c http.Client
	if cfg.client != nil {
		c = *cfg.client
	} else {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		if cfg.guard != nil {
			transport.Proxy = nil
			transport.DialContext = cfg.guard.dialContext(dialer)
		}
		c.Transport = transport
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	// The per-exchange context carries the timeout so it also covers the body.
	c.Timeout = 0
	return &c
}

// NewHeaders implements ports.Host.
func (h *Host) NewHeaders() ports.Headers {
	return &headers{}
}

// NewOutgoingRequest implements ports.Host.
func (h *Host) NewOutgoingRequest(hs ports.Headers) ports.OutgoingRequest {
	r := &outgoingRequest{method: ports.Method{Kind: ports.MethodGet}}
	if fh, ok := hs.(*headers); ok {
		r.header = fh.toHTTP()
	}
	hs.Drop()
	return r
}

// forbiddenHeaders are connection-level fields the host manages itself.
var forbiddenHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Host":              true,
	"Http2-Settings":    true,
}

type headers struct {
	mu        sync.Mutex
	entries   []ports.HeaderEntry
	immutable bool
}

func (hs *headers) Set(key string, values [][]byte) error {
	if hs.immutable {
		return &ports.HeaderError{Code: "immutable", Key: key}
	}
	if !httpguts.ValidHeaderFieldName(key) {
		return &ports.HeaderError{Code: "invalid-syntax", Key: key}
	}
	if forbiddenHeaders[http.CanonicalHeaderKey(key)] {
		return &ports.HeaderError{Code: "forbidden", Key: key}
	}
	cp := make([][]byte, 0, len(values))
	for _, v := range values {
		if !utf8.Valid(v) || !httpguts.ValidHeaderFieldValue(string(v)) {
			return &ports.HeaderError{Code: "invalid-syntax", Key: key}
		}
		cp = append(cp, bytes.Clone(v))
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	for i, e := range hs.entries {
		if strings.EqualFold(e.Key, key) {
			hs.entries[i].Values = cp
			return nil
		}
	}
	hs.entries = append(hs.entries, ports.HeaderEntry{Key: key, Values: cp})
	return nil
}

func (hs *headers) Entries() []ports.HeaderEntry {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make([]ports.HeaderEntry, len(hs.entries))
	copy(out, hs.entries)
	return out
}

func (hs *headers) Drop() {}

func (hs *headers) toHTTP() http.Header {
	out := make(http.Header)
	for _, e := range hs.Entries() {
		for _, v := range e.Values {
			out.Add(e.Key, string(v))
		}
	}
	return out
}

// headersFrom snapshots an http.Header in sorted key order as an immutable collection.
func headersFrom(h http.Header) *headers {
	hs := &headers{immutable: true}
	for _, key := range slices.Sorted(maps.Keys(h)) {
		values := make([][]byte, len(h[key]))
		for i, v := range h[key] {
			values[i] = []byte(v)
		}
		hs.entries = append(hs.entries, ports.HeaderEntry{Key: key, Values: values})
	}
	return hs
}

type outgoingRequest struct {
	header        http.Header
	authority     *string
	pathWithQuery *string
	body          *outgoingBody
	method        ports.Method
	scheme        ports.Scheme
	bodyTaken     bool
	dropped       bool
}

func (r *outgoingRequest) SetMethod(m ports.Method) error {
	if m.Kind == ports.MethodOther && !isToken(m.Other) {
		return ports.ErrInvalidValue
	}
	r.method = m
	return nil
}

func (r *outgoingRequest) SetScheme(s ports.Scheme) error {
	r.scheme = s
	return nil
}

func (r *outgoingRequest) SetAuthority(authority *string) error {
	if authority != nil && (*authority == "" || strings.ContainsAny(*authority, "/?#@") ||
		!httpguts.ValidHostHeader(*authority)) {
		return ports.ErrInvalidValue
	}
	r.authority = authority
	return nil
}

func (r *outgoingRequest) SetPathWithQuery(p *string) error {
	if p != nil && !validPathWithQuery(*p) {
		return ports.ErrInvalidValue
	}
	r.pathWithQuery = p
	return nil
}

func (r *outgoingRequest) Body() (ports.OutgoingBody, error) {
	if r.bodyTaken {
		return nil, ports.ErrResourceTaken
	}
	r.bodyTaken = true
	r.body = newOutgoingBody()
	return r.body, nil
}

func (r *outgoingRequest) Drop() {
	r.dropped = true
}

func (r *outgoingRequest) url() (string, error) {
	if r.authority == nil {
		return "", errors.New("request has no authority")
	}
	path := "/"
	if r.pathWithQuery != nil && *r.pathWithQuery != "" {
		path = *r.pathWithQuery
	}
	return r.scheme.String() + "://" + *r.authority + path, nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !httpguts.IsTokenRune(c) {
			return false
		}
	}
	return true
}

func validPathWithQuery(p string) bool {
	if p != "" && p[0] != '/' && p != "*" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if c := p[i]; c <= ' ' || c == 0x7f || c == '#' {
			return false
		}
	}
	return true
}

// outgoingBody collects the request payload. done is closed by Finish and
// abandoned is closed when the body is dropped without finishing.
type outgoingBody struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	done      chan struct{}
	abandoned chan struct{}
	state     bodyState
	taken     bool
}

type bodyState uint8

const (
	bodyOpen bodyState = iota
	bodyFinished
	bodyAbandoned
)

func newOutgoingBody() *outgoingBody {
	return &outgoingBody{done: make(chan struct{}), abandoned: make(chan struct{})}
}

func (b *outgoingBody) Write() (ports.OutputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken || b.state != bodyOpen {
		return nil, ports.ErrResourceTaken
	}
	b.taken = true
	return &outputStream{body: b}, nil
}

func (b *outgoingBody) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != bodyOpen {
		return errors.New("outgoing body already closed")
	}
	b.state = bodyFinished
	close(b.done)
	return nil
}

func (b *outgoingBody) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == bodyOpen {
		b.state = bodyAbandoned
		close(b.abandoned)
	}
}

func (b *outgoingBody) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

type outputStream struct {
	body   *outgoingBody
	closed bool
}

func (s *outputStream) Write(p []byte) error {
	if s.closed {
		return &ports.StreamError{Message: "output stream closed"}
	}
	s.body.mu.Lock()
	defer s.body.mu.Unlock()
	if s.body.state != bodyOpen {
		return &ports.StreamError{Message: "outgoing body already closed"}
	}
	s.body.buf.Write(p)
	return nil
}

func (s *outputStream) Drop() {
	s.closed = true
}
