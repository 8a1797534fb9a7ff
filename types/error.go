package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the core.
type ErrorCode string

// Protocol and data-integration error codes
const (
	ErrNotConnected    ErrorCode = "NOT_CONNECTED"
	ErrTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrDecode          ErrorCode = "DECODE_ERROR"
	ErrDataUnavailable ErrorCode = "DATA_UNAVAILABLE"
	ErrAuthentication  ErrorCode = "AUTHENTICATION"
)

// Orchestration error codes
const (
	ErrAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentFailed        ErrorCode = "AGENT_FAILED"
	ErrUnknownRoute       ErrorCode = "UNKNOWN_ROUTE"
	ErrStepBudgetExceeded ErrorCode = "STEP_BUDGET_EXCEEDED"
	ErrCancelled          ErrorCode = "CANCELLED"
	ErrInternal           ErrorCode = "INTERNAL_ERROR"
)

// Configuration error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrInvalidGraph  ErrorCode = "INVALID_GRAPH"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Server     string    `json:"server,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithServer sets the resource server that produced the error.
func (e *Error) WithServer(server string) *Error {
	e.Server = server
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
