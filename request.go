package sdfhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"
)

// BodyBuilder assembles a request around its body. Invalid headers are recorded
// and reported by the terminal call, so a chain never needs intermediate checks.
type BodyBuilder struct {
	ctx    context.Context
	client *Client
	header http.Header
	encode func() ([]byte, error)
	err    error
	major  int
	minor  int
}

// Get sends a GET request with an empty body using the default client.
func Get(uri string) (*ByteResponse, error) {
	return Empty().Get(uri)
}

// Empty starts a request without a body.
func Empty() *BodyBuilder {
	return newBodyBuilder(func() ([]byte, error) { return nil, nil })
}

// Bytes starts a request with a raw byte body.
func Bytes(b []byte) *BodyBuilder {
	return newBodyBuilder(func() ([]byte, error) { return b, nil })
}

// JSON starts a request whose body is v encoded as JSON. Encoding happens when
// the request is sent; an encoding failure is returned before the host is called.
func JSON(v any) *BodyBuilder {
	b := newBodyBuilder(func() ([]byte, error) { return json.Marshal(v) })
	return b.Header("Content-Type", "application/json")
}

func newBodyBuilder(encode func() ([]byte, error)) *BodyBuilder {
	return &BodyBuilder{
		ctx:    context.Background(),
		header: make(http.Header),
		encode: encode,
	}
}

// Using sends the request through c instead of the default client.
func (b *BodyBuilder) Using(c *Client) *BodyBuilder {
	b.client = c
	return b
}

// Context attaches ctx to the request. It scopes logging and tracing only.
func (b *BodyBuilder) Context(ctx context.Context) *BodyBuilder {
	if ctx != nil {
		b.ctx = ctx
	}
	return b
}

// Header appends value to key. Repeated calls with the same key keep every value.
func (b *BodyBuilder) Header(key, value string) *BodyBuilder {
	if b.err != nil {
		return b
	}
	if !httpguts.ValidHeaderFieldName(key) {
		b.err = fmt.Errorf("sdfhttp: invalid header name %q", key)
		return b
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		b.err = fmt.Errorf("sdfhttp: invalid value for header %q", key)
		return b
	}
	b.header.Add(key, value)
	return b
}

// Auth sets the Authorization header to token.
func (b *BodyBuilder) Auth(token string) *BodyBuilder {
	return b.Header("Authorization", token)
}

// Bearer sets "Authorization: Bearer <token>".
func (b *BodyBuilder) Bearer(token string) *BodyBuilder {
	return b.Auth("Bearer " + token)
}

// Version records the protocol version on the request. The host transport has
// no version field, so this is informational.
func (b *BodyBuilder) Version(major, minor int) *BodyBuilder {
	b.major, b.minor = major, minor
	return b
}

// Body encodes and returns the request payload without sending anything.
func (b *BodyBuilder) Body() ([]byte, error) {
	return b.encode()
}

func (b *BodyBuilder) Get(uri string) (*ByteResponse, error) {
	return b.Send(http.MethodGet, uri)
}

func (b *BodyBuilder) Post(uri string) (*ByteResponse, error) {
	return b.Send(http.MethodPost, uri)
}

func (b *BodyBuilder) Put(uri string) (*ByteResponse, error) {
	return b.Send(http.MethodPut, uri)
}

func (b *BodyBuilder) Delete(uri string) (*ByteResponse, error) {
	return b.Send(http.MethodDelete, uri)
}

// Send performs one exchange with the given method and URI.
func (b *BodyBuilder) Send(method, uri string) (*ByteResponse, error) {
	if b.err != nil {
		return nil, b.err
	}

	body, err := b.encode()
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: encoding body: %w", err)
	}

	req, err := http.NewRequestWithContext(b.ctx, method, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: %w", err)
	}
	req.Header = b.header.Clone()
	if b.major != 0 {
		req.Proto = fmt.Sprintf("HTTP/%d.%d", b.major, b.minor)
		req.ProtoMajor, req.ProtoMinor = b.major, b.minor
	}

	c := b.client
	if c == nil {
		if c, err = Default(); err != nil {
			return nil, err
		}
	}

	resp, err := c.driver.Send(b.ctx, req, body)
	if err != nil {
		return nil, err
	}
	return newByteResponse(resp)
}
