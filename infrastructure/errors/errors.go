// Package errors provides unified error handling for flowrt: a single
// ServiceError type carrying a wire-stable code, a human message, the HTTP
// status to answer with, and optional structured details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a wire-stable error code. Values are drawn from spec.md §6's
// vocabulary wherever an error can reach a client response; anything that
// never crosses the wire (see ErrCodeDuplicateProcedure) is free to use its
// own.
type ErrorCode string

const (
	// Input errors (spec.md §7): never retried, surfaced to the caller
	// verbatim.
	ErrCodeMethodNotAllowed     ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeBadRequest           ErrorCode = "BAD_REQUEST"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"

	// Identity errors: surfaced to the caller but never distinguish an
	// unauthenticated caller from one who lacks a capability on a resource
	// that doesn't exist.
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeProcedureNotFound covers both an unregistered RPC procedure and
	// a missing tenanted resource (process instance, actor) — spec.md §7
	// groups "ProcedureNotFound, instance/actor not found" under one
	// not-found taxonomy entry, and §6 lists a single wire code for it.
	ErrCodeProcedureNotFound ErrorCode = "PROCEDURE_NOT_FOUND"

	// Conflict errors: surfaced; the caller may retry after reading the new
	// version.
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"

	// Transient errors: recovered internally with bounded retry+backoff on
	// idempotent operations, surfaced otherwise.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// Internal: fatal within the request, never crashes the process.
	ErrCodeInternal ErrorCode = "INTERNAL"

	// ErrCodeDuplicateProcedure is a startup-time registration failure
	// (Router.Register) that never reaches a client — it is reduced to a
	// plain Go error before main() decides what to do with it — so it does
	// not need a §6 wire code.
	ErrCodeDuplicateProcedure ErrorCode = "DUPLICATE_PROCEDURE"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Input errors

func MethodNotAllowed(message string) *ServiceError {
	return New(ErrCodeMethodNotAllowed, message, http.StatusMethodNotAllowed)
}

func UnsupportedMediaType(message string) *ServiceError {
	return New(ErrCodeUnsupportedMediaType, message, http.StatusUnsupportedMediaType)
}

func BadRequest(message string) *ServiceError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func ValidationFailed(reason string) *ServiceError {
	return New(ErrCodeValidationFailed, reason, http.StatusUnprocessableEntity)
}

// Identity errors

func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func PermissionDenied(capability string) *ServiceError {
	return New(ErrCodePermissionDenied, "permission denied", http.StatusForbidden).
		WithDetails("capability", capability)
}

// RateLimitExceeded is a capacity rejection (spec.md §7's "Capacity" class);
// §6 has no dedicated wire code for it, so it borrows PermissionDenied's —
// both describe the caller being turned away by a policy decision — while
// keeping its own 429 status.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodePermissionDenied, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Not-found errors

func ProcedureNotFound(name string) *ServiceError {
	return New(ErrCodeProcedureNotFound, "procedure not found", http.StatusNotFound).
		WithDetails("procedure", name)
}

// NotFound reports a missing tenanted resource. Per spec.md §4.6, a wrong
// tenant and an unknown id both surface as this, never as Forbidden, so
// callers can't use it to probe for a resource's existence.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeProcedureNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Conflict errors

// VersionConflict reports a failed optimistic-concurrency CAS on an
// actor's event stream (spec.md §4.2).
func VersionConflict(message string) *ServiceError {
	return New(ErrCodeVersionConflict, message, http.StatusConflict)
}

// Transient errors

// Timeout reports a deadline exceeded during operation (spec.md §4.1's
// ask() timeout, §4.4's ctx.deadline).
func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Internal errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// RPC dispatch errors (§4.4)

func DuplicateProcedure(name string) *ServiceError {
	return New(ErrCodeDuplicateProcedure, "procedure already registered", http.StatusConflict).
		WithDetails("procedure", name)
}

// GetServiceError extracts a ServiceError from an error chain, or nil if
// none is present.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}
