package authzen

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeValidation           = "authzen.validation"            // Malformed request
	CodeEntityResolution     = "authzen.entity_resolution"     // Entity provider I/O failure
	CodeEvaluationFailed     = "authzen.evaluation_failed"     // Backing engine call failure
	CodeUnsupportedOperation = "authzen.unsupported_operation" // Operation not available for this backend
)

var httpStatusMap = map[string]int{
	CodeValidation:           http.StatusBadRequest,          // 400
	CodeEntityResolution:     http.StatusBadGateway,          // 502
	CodeEvaluationFailed:     http.StatusInternalServerError, // 500
	CodeUnsupportedOperation: http.StatusNotImplemented,      // 501
}

// Error is a decision pipeline failure with a structured code.
type Error struct {
	Code    string // One of the Code* constants
	Message string // Human-readable description, safe to return to clients for CodeValidation
	Status  int    // HTTP status code
	Err     error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the status code a transport should answer with.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  httpStatusMap[code],
		Err:     cause,
	}
}

// ErrValidation reports a malformed request.
func ErrValidation(format string, args ...any) *Error {
	return newError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

// ErrEntityResolution wraps an entity provider failure. The whole evaluation
// is aborted.
func ErrEntityResolution(cause error) *Error {
	return newError(CodeEntityResolution, "failed to resolve entities", cause)
}

// ErrEvaluationFailed wraps a backing engine failure. No partial decisions
// accompany it.
func ErrEvaluationFailed(cause error) *Error {
	return newError(CodeEvaluationFailed, "failed to perform AuthZEN evaluation", cause)
}

// ErrUnsupportedOperation reports an operation the configured backend cannot serve.
func ErrUnsupportedOperation(op string) *Error {
	return newError(CodeUnsupportedOperation, fmt.Sprintf("AuthZEN %s not implemented", op), nil)
}

// ErrorCode extracts the code from err, or "" if err is not an *Error.
func ErrorCode(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return ""
}

// IsError returns true if err is or wraps an *Error.
func IsError(err error) bool {
	var aerr *Error
	return errors.As(err, &aerr)
}
