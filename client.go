// Package sdfhttp is a blocking HTTP client that runs over a host transport
// capability.
//
// Each call performs exactly one request/response exchange: the request body is
// written, the request is submitted, the calling goroutine blocks until the host
// reports completion, and the response body is drained into memory.
//
//	resp, err := sdfhttp.JSON(payload).Bearer("123").Post("http://localhost:3000/create")
//	if err != nil {
//		return err
//	}
//	text, err := resp.Text()
//
// There is no retry, redirect handling, cookie jar or connection reuse at this
// layer. Host failures come back as *errors.ExchangeError values whose kind can
// be matched with errors.Is.
package sdfhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/reglet-dev/sdf-http/application/transport"
	"github.com/reglet-dev/sdf-http/domain/ports"
)

// Client sends requests through one host.
type Client struct {
	driver *transport.Driver
}

// Compile-time interface compliance check
var _ ports.HTTPClient = (*Client)(nil)

// NewClient creates a Client over host.
func NewClient(host ports.Host, opts ...transport.Option) (*Client, error) {
	d, err := transport.New(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: %w", err)
	}
	return &Client{driver: d}, nil
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
	defaultErr    error
)

// Default returns the process-wide client used by the package-level helpers.
// Natively it runs over net/http; inside a wasip1 guest it calls the host module.
func Default() (*Client, error) {
	defaultOnce.Do(func() {
		host, err := defaultHost()
		if err != nil {
			defaultErr = fmt.Errorf("sdfhttp: default host: %w", err)
			return
		}
		defaultClient, defaultErr = NewClient(host)
	})
	return defaultClient, defaultErr
}

// Transport exposes the client as an http.RoundTripper.
func (c *Client) Transport() http.RoundTripper {
	return c.driver
}

// Do executes req.
func (c *Client) Do(ctx context.Context, req ports.HTTPRequest) (*ports.HTTPResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: %w", err)
	}
	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}

	resp, err := c.driver.Send(ctx, httpReq, req.Body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: reading response body: %w", err)
	}
	return &ports.HTTPResponse{
		Headers:    resp.Header,
		Body:       body,
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*ports.HTTPResponse, error) {
	return c.Do(ctx, ports.HTTPRequest{Method: http.MethodGet, URL: url})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, url string, contentType string, body []byte) (*ports.HTTPResponse, error) {
	return c.Do(ctx, ports.HTTPRequest{
		Method:  http.MethodPost,
		URL:     url,
		Headers: http.Header{"Content-Type": {contentType}},
		Body:    body,
	})
}
