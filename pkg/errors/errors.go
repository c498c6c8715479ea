package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Graph errors
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"

	// Application errors
	ErrorTypeInternal  ErrorType = "INTERNAL"
	ErrorTypeRateLimit ErrorType = "RATE_LIMIT"

	// Infrastructure errors
	ErrorTypeStorage ErrorType = "STORAGE_FAILURE"
)

// Error codes attached to AppError.Code
const (
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeEdgeNotFound     = "EDGE_NOT_FOUND"
	CodeParentNotFound   = "PARENT_NOT_FOUND"
	CodeEndpointNotFound = "ENDPOINT_NOT_FOUND"
	CodeStaleMutation    = "STALE_MUTATION"
	CodeOwnerMismatch    = "OWNER_MISMATCH"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeExpiredToken     = "EXPIRED_TOKEN"
	CodeCircuitOpen      = "CIRCUIT_OPEN"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

// Constructor functions for common error types

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		StackTrace: captureStackTrace(),
	}
}

// NewNodeNotFoundError reports a node that is absent or owned by someone else.
// Both causes produce the same error so existence never leaks across owners.
func NewNodeNotFoundError(id string) *AppError {
	return NewNotFoundError("node").
		WithCode(CodeNodeNotFound).
		WithDetails(map[string]interface{}{"id": id})
}

// NewEdgeNotFoundError reports an edge that is absent or owned by someone else.
func NewEdgeNotFoundError(id string) *AppError {
	return NewNotFoundError("edge").
		WithCode(CodeEdgeNotFound).
		WithDetails(map[string]interface{}{"id": id})
}

// NewParentNotFoundError rejects a payload.parentId that names no node of the owner
func NewParentNotFoundError(parentID string) *AppError {
	return NewValidationError("parent node does not exist").
		WithCode(CodeParentNotFound).
		WithDetails(map[string]interface{}{"parentId": parentID})
}

// NewEndpointNotFoundError rejects an edge whose source or target is missing
func NewEndpointNotFoundError(nodeID string) *AppError {
	return NewValidationError("edge endpoint does not exist").
		WithCode(CodeEndpointNotFound).
		WithDetails(map[string]interface{}{"nodeId": nodeID})
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
	}
}

// NewStaleMutationError is returned when an update carries an older sequence
// number than the one already applied to the node.
func NewStaleMutationError(id string, seq, current int64) *AppError {
	return NewConflictError("mutation superseded by a newer write").
		WithCode(CodeStaleMutation).
		WithDetails(map[string]interface{}{"id": id, "seq": seq, "current_seq": current})
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
		StackTrace: captureStackTrace(),
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Type:       ErrorTypeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
		StackTrace: captureStackTrace(),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
		StackTrace: captureStackTrace(),
	}
}

// NewStorageError wraps a failure of the backing store. Storage failures are
// surfaced to the caller as retryable; the service never retries on its own.
func NewStorageError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    fmt.Sprintf("storage operation '%s' failed", operation),
		Cause:      err,
		Retryable:  true,
		HTTPStatus: http.StatusServiceUnavailable,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// HasCode checks if an error carries a specific code
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	return IsType(err, ErrorTypeUnauthorized)
}

// IsForbidden checks if an error is a forbidden error
func IsForbidden(err error) bool {
	return IsType(err, ErrorTypeForbidden)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsStorage checks if an error is a storage failure
func IsStorage(err error) bool {
	return IsType(err, ErrorTypeStorage)
}

// IsRetryable reports whether the caller may retry the failed operation
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Retryable
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
