// Package apperr defines the typed errors that cross the service boundary
// and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"commissions/internal/core"
)

// Type represents the category of error
type Type int

const (
	TypeInternal Type = iota
	TypeValidation
	TypeNotFound
	TypeUnauthenticated
	TypeForbidden
	TypeUnavailable
)

// String returns the string representation of the error type
func (t Type) String() string {
	switch t {
	case TypeValidation:
		return "validation"
	case TypeNotFound:
		return "not_found"
	case TypeUnauthenticated:
		return "unauthenticated"
	case TypeForbidden:
		return "forbidden"
	case TypeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// AppError is a categorised error with a message safe to show to users.
type AppError struct {
	Type    Type
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError of the same type and message, so package level
// AppError values work as sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Type == e.Type && t.Message == e.Message
}

func Validation(message string, cause error) *AppError {
	return &AppError{Type: TypeValidation, Message: message, Cause: cause}
}

func NotFound(message string, cause error) *AppError {
	return &AppError{Type: TypeNotFound, Message: message, Cause: cause}
}

func Unauthenticated(message string, cause error) *AppError {
	return &AppError{Type: TypeUnauthenticated, Message: message, Cause: cause}
}

func Forbidden(message string) *AppError {
	return &AppError{Type: TypeForbidden, Message: message}
}

func Unavailable(message string, cause error) *AppError {
	return &AppError{Type: TypeUnavailable, Message: message, Cause: cause}
}

func Internal(message string, cause error) *AppError {
	return &AppError{Type: TypeInternal, Message: message, Cause: cause}
}

// As extracts an AppError from the chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From classifies err. AppErrors pass through; core sentinels become
// validation or not-found errors; anything else is internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		return NotFound("entry not found", err)
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidTime),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidSelection):
		return Validation(err.Error(), err)
	}
	return Internal("internal error", err)
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch From(err).Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeUnauthenticated:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
