package hostfuncs

import (
	"encoding/json"

	"github.com/reglet-dev/sdf-http/wireformat"
)

// ErrorResponse is a call-level failure returned to the guest as JSON instead of
// trapping the module. It has the shape of a wireformat.ResultWire carrying only
// Error, so a guest decodes it with the same code path as any other result.
type ErrorResponse struct {
	Error *wireformat.ErrorDetail `json:"error"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
// Returns nil if serialization fails (which should never happen for this simple type).
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: &wireformat.ErrorDetail{
		Type:    wireformat.TypeValidation,
		Code:    "400",
		Message: message,
	}}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: &wireformat.ErrorDetail{
		Type:    wireformat.TypeNotFound,
		Code:    "404",
		Message: "unknown host function: " + name,
	}}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: &wireformat.ErrorDetail{
		Type:    wireformat.TypeInternal,
		Code:    "500",
		Message: message,
	}}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else if s, ok := panicValue.(string); ok {
		msg = s
	} else {
		msg = "panic recovered"
	}
	return ErrorResponse{Error: &wireformat.ErrorDetail{
		Type:    wireformat.TypePanic,
		Code:    "500",
		Message: "panic: " + msg,
	}}
}
