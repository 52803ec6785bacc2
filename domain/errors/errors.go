// Package errors provides the error types of the HTTP client and its host adapters.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/sdf-http/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// Kind identifies the step of an exchange that failed.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Conversion errors.
	KindInvalidMethod
	KindInvalidScheme
	KindInvalidAuthority
	KindInvalidPathQuery
	KindInvalidHeader
	KindInvalidStatus

	// Resource errors.
	KindBodyWriteUnavailable
	KindBodyStreamUnavailable
	KindBodyFinish

	// Transport errors.
	KindDispatch
	KindTransport
	KindResponseMissing
	KindResponseAlreadyTaken

	// I/O errors.
	KindTransportWrite
	KindBodyRead
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindInvalidMethod:         "invalid_method",
	KindInvalidScheme:         "invalid_scheme",
	KindInvalidAuthority:      "invalid_authority",
	KindInvalidPathQuery:      "invalid_path_query",
	KindInvalidHeader:         "invalid_header",
	KindInvalidStatus:         "invalid_status",
	KindBodyWriteUnavailable:  "body_write_unavailable",
	KindBodyStreamUnavailable: "body_stream_unavailable",
	KindBodyFinish:            "body_finish",
	KindDispatch:              "dispatch",
	KindTransport:             "transport",
	KindResponseMissing:       "response_missing",
	KindResponseAlreadyTaken:  "response_already_taken",
	KindTransportWrite:        "transport_write",
	KindBodyRead:              "body_read",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Class returns the taxonomy group of the kind: "conversion", "resource",
// "transport" or "io".
func (k Kind) Class() string {
	switch {
	case k >= KindInvalidMethod && k <= KindInvalidStatus:
		return "conversion"
	case k >= KindBodyWriteUnavailable && k <= KindBodyFinish:
		return "resource"
	case k >= KindDispatch && k <= KindResponseAlreadyTaken:
		return "transport"
	case k == KindTransportWrite || k == KindBodyRead:
		return "io"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is matching on the kind of an *ExchangeError.
var (
	ErrInvalidMethod         = &ExchangeError{Kind: KindInvalidMethod}
	ErrInvalidScheme         = &ExchangeError{Kind: KindInvalidScheme}
	ErrInvalidAuthority      = &ExchangeError{Kind: KindInvalidAuthority}
	ErrInvalidPathQuery      = &ExchangeError{Kind: KindInvalidPathQuery}
	ErrInvalidHeader         = &ExchangeError{Kind: KindInvalidHeader}
	ErrInvalidStatus         = &ExchangeError{Kind: KindInvalidStatus}
	ErrBodyWriteUnavailable  = &ExchangeError{Kind: KindBodyWriteUnavailable}
	ErrBodyStreamUnavailable = &ExchangeError{Kind: KindBodyStreamUnavailable}
	ErrBodyFinish            = &ExchangeError{Kind: KindBodyFinish}
	ErrDispatch              = &ExchangeError{Kind: KindDispatch}
	ErrTransport             = &ExchangeError{Kind: KindTransport}
	ErrResponseMissing       = &ExchangeError{Kind: KindResponseMissing}
	ErrResponseAlreadyTaken  = &ExchangeError{Kind: KindResponseAlreadyTaken}
	ErrTransportWrite        = &ExchangeError{Kind: KindTransportWrite}
	ErrBodyRead              = &ExchangeError{Kind: KindBodyRead}
)

// ExchangeError is a failed request-response exchange. Err carries the host's
// own detail when there is one.
type ExchangeError struct {
	Err  error
	Kind Kind
}

// NewExchangeError wraps err with kind.
func NewExchangeError(kind Kind, err error) *ExchangeError {
	return &ExchangeError{Kind: kind, Err: err}
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http exchange: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("http exchange: %s", e.Kind)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *ExchangeError of the same kind.
func (e *ExchangeError) Is(target error) bool {
	t, ok := target.(*ExchangeError)
	return ok && t.Kind == e.Kind
}

// ToErrorDetail implements DetailedError.
func (e *ExchangeError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: "network", Code: e.Kind.String()}
	switch e.Kind.Class() {
	case "conversion":
		detail.Type = "validation"
	case "resource", "internal":
		detail.Type = "internal"
	}
	return detail
}

// KindOf returns the kind of the first *ExchangeError in err's chain.
func KindOf(err error) Kind {
	var ee *ExchangeError
	if stdErrors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// SchemaError represents a schema generation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "wire_format"}
}
