// Package apperror defines the domain errors shared by every layer.
//
// Lower layers return these (usually wrapped with fmt.Errorf("...: %w")),
// and the handler layer maps them to HTTP with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrDuplicateUsername is a conflict on users.username.
	ErrDuplicateUsername = fmt.Errorf("duplicate username: %w", ErrConflict)
	// ErrInvalidCredentials covers both "no such user" and "wrong password".
	// Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSync               = errors.New("price sync failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DuplicateUsername is returned by the credential store when the UNIQUE
// constraint on users.username rejects an insert.
func DuplicateUsername(username string) *AppError {
	return &AppError{
		Err:     ErrDuplicateUsername,
		Message: fmt.Sprintf("username %q already exists", username),
		Field:   "username",
	}
}

// InvalidCredentials carries one fixed message so the response is the same
// whether the username or the password was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid username or password",
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// SyncFailed wraps a provider fetch or parse failure. The cause stays in the
// chain so logs keep it, while errors.Is(err, ErrSync) still matches.
func SyncFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrSync, cause),
		Message: message,
	}
}
