package wireformat

import (
	"errors"
	"fmt"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// Error types carried in ErrorDetail.Type. The first group maps one-to-one onto
// the host capability's errors; the rest describe failures of the call itself.
const (
	TypeHeader        = "header"
	TypeTransport     = "transport"
	TypeStream        = "stream"
	TypeClosed        = "closed"
	TypeAlreadyTaken  = "already_taken"
	TypeInvalidValue  = "invalid_value"
	TypeResourceTaken = "resource_taken"
	TypeNoBody        = "no_body"

	TypeHandle     = "handle"
	TypeValidation = "validation"
	TypeNotFound   = "not_found"
	TypePanic      = "panic"
	TypeInternal   = "internal"
)

// ErrorDetail provides structured error information, consistent across host and guest.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	// Subject is the header key of a header error.
	Subject string `json:"subject,omitempty"`
}

// Error implements the error interface for ErrorDetail.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != TypeInternal {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	return msg
}

var sentinels = []struct {
	err error
	typ string
}{
	{ports.ErrStreamClosed, TypeClosed},
	{ports.ErrAlreadyTaken, TypeAlreadyTaken},
	{ports.ErrInvalidValue, TypeInvalidValue},
	{ports.ErrResourceTaken, TypeResourceTaken},
	{ports.ErrNoBody, TypeNoBody},
}

// EncodeError converts a host capability error to its wire form.
func EncodeError(err error) *ErrorDetail {
	if err == nil {
		return nil
	}

	var detail *ErrorDetail
	if errors.As(err, &detail) {
		return detail
	}

	var he *ports.HeaderError
	if errors.As(err, &he) {
		return &ErrorDetail{Type: TypeHeader, Code: he.Code, Subject: he.Key, Message: err.Error()}
	}
	var te *ports.TransportError
	if errors.As(err, &te) {
		return &ErrorDetail{Type: TypeTransport, Code: te.Code, Message: te.Message}
	}
	var se *ports.StreamError
	if errors.As(err, &se) {
		return &ErrorDetail{Type: TypeStream, Message: se.Message}
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &ErrorDetail{Type: s.typ, Message: err.Error()}
		}
	}
	return &ErrorDetail{Type: TypeInternal, Message: err.Error()}
}

// DecodeError rebuilds the host capability error described by d, so that
// errors.Is and errors.As behave on the guest as they do on the host. Types
// without a capability equivalent come back as d itself.
func DecodeError(d *ErrorDetail) error {
	if d == nil {
		return nil
	}
	switch d.Type {
	case TypeHeader:
		return &ports.HeaderError{Code: d.Code, Key: d.Subject}
	case TypeTransport:
		return &ports.TransportError{Code: d.Code, Message: d.Message}
	case TypeStream:
		return &ports.StreamError{Message: d.Message}
	}
	for _, s := range sentinels {
		if d.Type == s.typ {
			if d.Message == "" || d.Message == s.err.Error() {
				return s.err
			}
			return &remoteError{msg: d.Message, err: s.err}
		}
	}
	return d
}

// remoteError keeps the host's message for a sentinel error.
type remoteError struct {
	err error
	msg string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.err }
