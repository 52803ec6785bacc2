package ports

import (
	"context"
	"net/http"
)

// HTTPClient defines the caller-facing interface for HTTP operations.
// Implementations perform exactly one exchange per call.
type HTTPClient interface {
	// Do executes an HTTP request and returns the response.
	Do(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)

	// Get performs an HTTP GET request.
	Get(ctx context.Context, url string) (*HTTPResponse, error)

	// Post performs an HTTP POST request.
	Post(ctx context.Context, url string, contentType string, body []byte) (*HTTPResponse, error)
}

// HTTPRequest represents an HTTP request.
type HTTPRequest struct {
	Headers http.Header
	Method  string
	URL     string
	Body    []byte
}

// HTTPResponse represents a fully drained HTTP response.
type HTTPResponse struct {
	Headers    http.Header
	Body       []byte
	Proto      string // e.g. "HTTP/1.1"
	StatusCode int
}
