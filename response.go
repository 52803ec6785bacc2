package sdfhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

// ErrNotUTF8 is returned by ByteResponse.Text when the body is not valid UTF-8.
var ErrNotUTF8 = errors.New("sdfhttp: response body is not valid UTF-8")

// ByteResponse is a fully drained response.
type ByteResponse struct {
	resp *http.Response
	body []byte
}

func newByteResponse(resp *http.Response) (*ByteResponse, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdfhttp: reading response body: %w", err)
	}
	return &ByteResponse{resp: resp, body: body}, nil
}

// Status returns the status code.
func (r *ByteResponse) Status() int {
	return r.resp.StatusCode
}

// Header returns the response headers as received from the host.
func (r *ByteResponse) Header() http.Header {
	return r.resp.Header
}

// Text returns the body as a string.
func (r *ByteResponse) Text() (string, error) {
	if !utf8.Valid(r.body) {
		return "", ErrNotUTF8
	}
	return string(r.body), nil
}

// Bytes returns a copy of the body.
func (r *ByteResponse) Bytes() []byte {
	return bytes.Clone(r.body)
}

// AsSlice returns the body without copying. Callers must not modify it.
func (r *ByteResponse) AsSlice() []byte {
	return r.body
}

// JSON decodes the body into v.
func (r *ByteResponse) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("sdfhttp: decoding response body: %w", err)
	}
	return nil
}

// Response returns the underlying response with a fresh reader over the body.
func (r *ByteResponse) Response() *http.Response {
	out := *r.resp
	out.Body = io.NopCloser(bytes.NewReader(r.body))
	return &out
}
