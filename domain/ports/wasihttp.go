package ports

import (
	"errors"
	"fmt"
)

// Host is the narrow transport capability a guest uses to perform HTTP exchanges.
// Every handle it returns is single-owner; callers release it with Drop unless
// ownership was transferred to the host (Handle, Finish, Consume).
type Host interface {
	// NewHeaders creates an empty, mutable header collection.
	NewHeaders() Headers

	// NewOutgoingRequest creates a request that takes ownership of headers.
	NewOutgoingRequest(headers Headers) OutgoingRequest

	// Handle submits the request. Ownership of req passes to the host even on error.
	// A rejection before any I/O is returned as *TransportError.
	Handle(req OutgoingRequest) (FutureIncomingResponse, error)
}

// Resource is a host handle with explicit release semantics.
type Resource interface {
	// Drop releases the handle. Dropping twice is a no-op.
	Drop()
}

// HeaderEntry is one key with all of its values, as enumerated by the host.
type HeaderEntry struct {
	Key    string
	Values [][]byte
}

// Headers is the host's header collection.
type Headers interface {
	Resource

	// Set replaces all values for key. A refusal is returned as *HeaderError.
	Set(key string, values [][]byte) error

	// Entries lists the collection in the host's native order and grouping.
	Entries() []HeaderEntry
}

// OutgoingRequest is a request under construction. Setters fail with
// ErrInvalidValue when the host rejects the value.
type OutgoingRequest interface {
	Resource

	SetMethod(m Method) error
	SetScheme(s Scheme) error
	// SetAuthority sets or, with nil, clears the authority.
	SetAuthority(authority *string) error
	// SetPathWithQuery sets or, with nil, clears the path and query.
	SetPathWithQuery(pathWithQuery *string) error

	// Body returns the request's only body handle. A second call fails.
	Body() (OutgoingBody, error)
}

// OutgoingBody is the body of an OutgoingRequest.
type OutgoingBody interface {
	Resource

	// Write returns the only output stream of this body. A second call fails.
	Write() (OutputStream, error)

	// Finish consumes the body and marks it complete with no trailers.
	Finish() error
}

// OutputStream accepts request body bytes. Dropping it ends the write phase.
type OutputStream interface {
	Resource

	// Write buffers p without blocking. Failures are *StreamError.
	Write(p []byte) error
}

// IncomingOutcome is the settled result of a submitted request. Exactly one of
// Response and Failure is set.
type IncomingOutcome struct {
	Response IncomingResponse
	Failure  *TransportError
}

// FutureIncomingResponse is the completion handle returned by Host.Handle.
type FutureIncomingResponse interface {
	Resource

	// Get polls without blocking. ready is false while the exchange is in flight.
	// Once the outcome has been returned, later calls report ErrAlreadyTaken.
	Get() (outcome IncomingOutcome, ready bool, err error)

	// Subscribe returns a one-shot notifier that fires when Get is ready.
	Subscribe() Pollable
}

// IncomingResponse is the host's response handle.
type IncomingResponse interface {
	Resource

	Status() uint16
	Headers() Headers

	// Consume returns the only body handle of this response, or ErrNoBody when the
	// host knows there is no content.
	Consume() (IncomingBody, error)
}

// IncomingBody is the body of an IncomingResponse.
type IncomingBody interface {
	Resource

	// Stream returns the only input stream of this body.
	Stream() (InputStream, error)
}

// InputStream yields response body bytes in bounded, non-blocking reads.
type InputStream interface {
	Resource

	// Read returns at most maxBytes. An empty slice with nil error means no data
	// is buffered yet. End of stream is ErrStreamClosed; other failures are *StreamError.
	Read(maxBytes uint64) ([]byte, error)

	// Subscribe returns a reusable notifier that fires when Read has data or the
	// stream has ended.
	Subscribe() Pollable
}

// Pollable is a readiness notifier.
type Pollable interface {
	Resource

	// Block suspends the calling goroutine until the condition holds.
	Block()
}

// MethodKind enumerates the standard methods known to the host.
type MethodKind uint8

const (
	MethodGet MethodKind = iota
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch
	MethodOther
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// Method is the host representation of a request method. Other carries the
// verbatim token when Kind is MethodOther.
type Method struct {
	Other string
	Kind  MethodKind
}

// String returns the method token.
func (m Method) String() string {
	if m.Kind == MethodOther {
		return m.Other
	}
	if int(m.Kind) < len(methodNames) {
		return methodNames[m.Kind]
	}
	return ""
}

// Scheme is the host representation of a URI scheme.
type Scheme uint8

const (
	SchemeHTTP Scheme = iota
	SchemeHTTPS
)

// String returns the lowercase scheme name.
func (s Scheme) String() string {
	if s == SchemeHTTPS {
		return "https"
	}
	return "http"
}

var (
	// ErrStreamClosed is returned by InputStream.Read once the stream has ended.
	ErrStreamClosed = errors.New("stream closed")

	// ErrAlreadyTaken is returned by FutureIncomingResponse.Get after the outcome was consumed.
	ErrAlreadyTaken = errors.New("response already taken")

	// ErrInvalidValue is returned by OutgoingRequest setters on rejected input.
	ErrInvalidValue = errors.New("invalid value")

	// ErrResourceTaken is returned when a single-use child handle was already obtained.
	ErrResourceTaken = errors.New("resource already taken")

	// ErrNoBody is returned by IncomingResponse.Consume when the response has no
	// content at all. It is distinct from a body stream that cannot be obtained.
	ErrNoBody = errors.New("response has no body")
)

// HeaderError is the host's refusal of a header key or value.
type HeaderError struct {
	// Code is one of "invalid-syntax", "forbidden" or "immutable".
	Code string
	Key  string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header %q rejected: %s", e.Key, e.Code)
}

// TransportError is the host's classification of a failed exchange, e.g.
// "DNS-error", "connection-refused" or "TLS-protocol-error".
type TransportError struct {
	Code    string
	Message string
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StreamError is a stream failure other than a normal close.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}
