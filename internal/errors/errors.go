// Package errors defines structured error types for the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maruel/mockdb/internal/document"
	"github.com/maruel/mockdb/internal/jsondb"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when the request cannot be applied to the target
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrInvalidFormat is returned when the request body is not valid JSON
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrUnsupportedMediaType is returned for an unknown patch content type
	ErrUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	// ErrPayloadTooLarge is returned when the request body exceeds the limit
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// ErrNotFound is returned when a path does not exist in the document
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned when inserting an id or key that already exists
	ErrConflict ErrorCode = "CONFLICT"

	// ErrNotReady is returned when the database holds no document
	ErrNotReady ErrorCode = "NOT_READY"
	// ErrStorageError is returned when the document could not be flushed
	ErrStorageError ErrorCode = "STORAGE_ERROR"
	// ErrRateLimited is returned when a client exceeds its request budget
	ErrRateLimited ErrorCode = "RATE_LIMITED"

	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 error naming the path segment that did not resolve.
func NotFound(segment string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%q not found", segment)).WithDetail("segment", segment)
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// InvalidBody creates a 400 error for a body that does not parse.
func InvalidBody(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrInvalidFormat, "Invalid request body").Wrap(err)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrConflict, message)
}

// UnsupportedMediaType creates a 415 error.
func UnsupportedMediaType(contentType string) *APIError {
	return NewAPIError(http.StatusUnsupportedMediaType, ErrUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", contentType))
}

// PayloadTooLarge creates a 413 error.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, "Request body too large").WithDetail("limit", limit)
}

// NotReady creates a 503 error for a store without a document.
func NotReady() *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrNotReady, "Database is not loaded")
}

// RateLimited creates a 429 error.
func RateLimited() *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "Too many requests")
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// FromStore maps an error returned by document or jsondb to an APIError.
// Errors that already carry a status are returned as is.
func FromStore(err error) ErrorWithStatus {
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		return ews
	}
	var nf *document.NotFoundError
	if errors.As(err, &nf) {
		return NotFound(nf.Segment)
	}
	var fe *jsondb.FlushError
	if errors.As(err, &fe) {
		return NewAPIError(http.StatusInternalServerError, ErrStorageError, "Failed to persist the document").Wrap(err)
	}
	var le *jsondb.LoadError
	if errors.Is(err, jsondb.ErrNotReady) || errors.As(err, &le) {
		return NotReady().Wrap(err)
	}
	if errors.Is(err, jsondb.ErrRoot) {
		return BadRequest(err.Error())
	}
	return Internal("Internal error").Wrap(err)
}
