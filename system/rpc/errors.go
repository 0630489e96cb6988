package rpc

import (
	svcerrors "github.com/r3e-network/flowrt/infrastructure/errors"
)

// DuplicateProcedure builds the ErrorInfo for registering an already-taken name.
func DuplicateProcedure(name string) *ErrorInfo {
	return fromServiceError(svcerrors.DuplicateProcedure(name))
}

// ProcedureNotFound builds the ErrorInfo for dispatching an unregistered name.
func ProcedureNotFound(name string) *ErrorInfo {
	return fromServiceError(svcerrors.ProcedureNotFound(name))
}

// ValidationFailed builds the ErrorInfo for an input that failed handler validation.
func ValidationFailed(reason string) *ErrorInfo {
	return fromServiceError(svcerrors.ValidationFailed(reason))
}

// VersionConflict builds the ErrorInfo for a handler error wrapping a
// failed optimistic-concurrency append (eventstore.ErrVersionConflict).
func VersionConflict(message string) *ErrorInfo {
	return fromServiceError(svcerrors.VersionConflict(message))
}

// Timeout builds the ErrorInfo for a handler that did not return before
// its context deadline elapsed.
func Timeout(operation string) *ErrorInfo {
	return fromServiceError(svcerrors.Timeout(operation))
}

// Internal wraps any other handler error as an opaque internal failure,
// preserving the cause in Details for diagnostics without leaking it as
// the message clients match on.
func Internal(cause error) *ErrorInfo {
	svcErr := svcerrors.Internal("internal error", cause)
	info := fromServiceError(svcErr)
	if cause != nil {
		info.Details = map[string]any{"cause": cause.Error()}
	}
	return info
}

func fromServiceError(err *svcerrors.ServiceError) *ErrorInfo {
	return &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Details:    err.Details,
		HTTPStatus: err.HTTPStatus,
	}
}
