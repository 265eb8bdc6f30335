package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the control plane.
const (
	ErrCodeValidation = "validation_error"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeUpstream   = "upstream_unavailable"
	ErrCodeStorage    = "storage_error"
	ErrCodeInternal   = "internal_error"
)

// Error is a classified control-plane failure. Message is what operators see
// in response bodies, so it is kept free of internal detail.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed or incomplete request.
func NewValidationError(message string, details map[string]any) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Details: details}
}

// NewNotFoundError reports an unknown job identifier.
func NewNotFoundError(resourceType, resourceID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("not found %s:%s", resourceType, resourceID),
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
	}
}

// NewConflictError reports an add-only registration of an existing identifier.
func NewConflictError(message string, details map[string]any) *Error {
	return &Error{Code: ErrCodeConflict, Message: message, Details: details}
}

// NewUpstreamError reports that the scheduler has no live worker to serve a request.
func NewUpstreamError(message string) *Error {
	return &Error{Code: ErrCodeUpstream, Message: message}
}

// NewStorageError wraps a store or transaction failure.
func NewStorageError(op string, err error) *Error {
	return &Error{
		Code:    ErrCodeStorage,
		Message: fmt.Sprintf("%s: %v", op, err),
		Err:     err,
	}
}

// NewInternalError reports anything unexpected.
func NewInternalError(message string) *Error {
	return &Error{Code: ErrCodeInternal, Message: message}
}

// IsNotFound reports whether err carries ErrCodeNotFound.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// HTTPStatus maps an error to the status code the management API answers with.
// Conflicts map to 500 to stay compatible with existing dashboards.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the operator-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
