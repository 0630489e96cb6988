package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeUnauthorized, "test message", http.StatusUnauthorized),
			want: "[UNAUTHORIZED] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[INTERNAL] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeValidationFailed, "test", http.StatusUnprocessableEntity)
	err.WithDetails("field", "username").WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "username" {
		t.Errorf("Details[field] = %v, want username", err.Details["field"])
	}

	if err.Details["reason"] != "too short" {
		t.Errorf("Details[reason] = %v, want too short", err.Details["reason"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	err := MethodNotAllowed("method not allowed")

	if err.Code != ErrCodeMethodNotAllowed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMethodNotAllowed)
	}

	if err.HTTPStatus != http.StatusMethodNotAllowed {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusMethodNotAllowed)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	err := UnsupportedMediaType("unsupported media type")

	if err.Code != ErrCodeUnsupportedMediaType {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnsupportedMediaType)
	}

	if err.HTTPStatus != http.StatusUnsupportedMediaType {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnsupportedMediaType)
	}
}

func TestBadRequest(t *testing.T) {
	err := BadRequest("malformed JSON body")

	if err.Code != ErrCodeBadRequest {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBadRequest)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed("missing field")

	if err.Code != ErrCodeValidationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidationFailed)
	}

	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnprocessableEntity)
	}
}

func TestUnauthorized(t *testing.T) {
	err := Unauthorized("test message")

	if err.Code != ErrCodeUnauthorized {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnauthorized)
	}

	if err.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnauthorized)
	}

	if err.Message != "test message" {
		t.Errorf("Message = %v, want test message", err.Message)
	}
}

func TestPermissionDenied(t *testing.T) {
	err := PermissionDenied("process:start")

	if err.Code != ErrCodePermissionDenied {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodePermissionDenied)
	}

	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}

	if err.Details["capability"] != "process:start" {
		t.Errorf("Details[capability] = %v, want process:start", err.Details["capability"])
	}
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded(100, "1m")

	if err.Code != ErrCodePermissionDenied {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodePermissionDenied)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}

	if err.Details["limit"] != 100 {
		t.Errorf("Details[limit] = %v, want 100", err.Details["limit"])
	}
}

func TestProcedureNotFound(t *testing.T) {
	err := ProcedureNotFound("workflow.start")

	if err.Code != ErrCodeProcedureNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeProcedureNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["procedure"] != "workflow.start" {
		t.Errorf("Details[procedure] = %v, want workflow.start", err.Details["procedure"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("actor", "123")

	if err.Code != ErrCodeProcedureNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeProcedureNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["resource"] != "actor" {
		t.Errorf("Details[resource] = %v, want actor", err.Details["resource"])
	}

	if err.Details["id"] != "123" {
		t.Errorf("Details[id] = %v, want 123", err.Details["id"])
	}
}

func TestVersionConflict(t *testing.T) {
	err := VersionConflict("expected version 4, got 5")

	if err.Code != ErrCodeVersionConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeVersionConflict)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("database query")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "database query" {
		t.Errorf("Details[operation] = %v, want database query", err.Details["operation"])
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("connection reset")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestDuplicateProcedure(t *testing.T) {
	err := DuplicateProcedure("workflow.start")

	if err.Code != ErrCodeDuplicateProcedure {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDuplicateProcedure)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}

	if err.Details["procedure"] != "workflow.start" {
		t.Errorf("Details[procedure] = %v, want workflow.start", err.Details["procedure"])
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}
