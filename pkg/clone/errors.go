package clone

import (
	"errors"
	"fmt"
)

// ErrorClass classifies clone errors for callers that branch on them.
type ErrorClass string

const (
	// ErrorClassInvalidArgument indicates a contract violation by the caller.
	// Examples: a nil CopyInto source, a destination of the wrong type.
	ErrorClassInvalidArgument ErrorClass = "invalid_argument"

	// ErrorClassUnsupported indicates a type whose own API broke the engine's
	// expectations, such as a MultiArray whose Like returns another type.
	ErrorClassUnsupported ErrorClass = "unsupported"
)

// CloneError represents a classified error with context.
// nolint:revive // CloneError is intentionally named to distinguish from standard errors
type CloneError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Type is the qualified name of the type involved, if any.
	Type string `json:"type,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *CloneError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type=%s)", e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CloneError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *CloneError) Is(target error) bool {
	t, ok := target.(*CloneError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewInvalidArgumentError creates a new invalid argument error.
func NewInvalidArgumentError(code, message string) *CloneError {
	return &CloneError{
		Class:   ErrorClassInvalidArgument,
		Code:    code,
		Message: message,
	}
}

// NewUnsupportedError creates a new unsupported type error.
func NewUnsupportedError(code, message string) *CloneError {
	return &CloneError{
		Class:   ErrorClassUnsupported,
		Code:    code,
		Message: message,
	}
}

// WithType adds the offending type's name to an error.
func (e *CloneError) WithType(name string) *CloneError {
	e.Type = name
	return e
}

// IsInvalidArgument returns true if the error is classified as an invalid argument.
func IsInvalidArgument(err error) bool {
	var e *CloneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInvalidArgument
	}
	return false
}

// IsUnsupported returns true if the error is classified as unsupported.
func IsUnsupported(err error) bool {
	var e *CloneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnsupported
	}
	return false
}

// Common error codes.
const (
	ErrCodeNilSource       = "NIL_SOURCE"
	ErrCodeStringSource    = "STRING_SOURCE"
	ErrCodeNilDestination  = "NIL_DESTINATION"
	ErrCodeNotPointer      = "DESTINATION_NOT_POINTER"
	ErrCodeTypeMismatch    = "TYPE_MISMATCH"
	ErrCodeMultiArrayShape = "MULTI_ARRAY_SHAPE"
)

// Sentinel errors for errors.Is checks.
var (
	ErrNilSource      = NewInvalidArgumentError(ErrCodeNilSource, "source is nil")
	ErrStringSource   = NewInvalidArgumentError(ErrCodeStringSource, "source is a string")
	ErrNilDestination = NewInvalidArgumentError(ErrCodeNilDestination, "destination is nil")
	ErrNotPointer     = NewInvalidArgumentError(ErrCodeNotPointer, "destination is not a pointer")
	ErrTypeMismatch   = NewInvalidArgumentError(ErrCodeTypeMismatch, "destination type does not match source")
)
