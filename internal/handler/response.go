package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// WHY HELPERS?
// Without helpers, every handler repeats the same boilerplate:
//   w.Header().Set("Content-Type", "application/json")
//   w.WriteHeader(statusCode)
//   json.NewEncoder(w).Encode(data)
//
// With helpers, handlers are cleaner and more consistent:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the JSON API has the same shape:
//   {"error": "not_found", "message": "item not found with id 42"}
//
// A script reading /api/items always knows which fields to expect, whether
// the status is 400, 401, 404 or 500. HTML pages don't use these helpers:
// they report errors with a flash message and a redirect (see flash.go).

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/coin-tracker/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
// Having a struct ensures consistent JSON shape across all error responses.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
//
// That's why we do:
//  1. w.Header().Set(...)     ← set headers
//  2. w.WriteHeader(status)   ← send status + headers
//  3. json.Encode(data)       ← send body
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The headers are already sent, so all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// This is where domain errors (from the service layer) get translated to HTTP.
// The service layer returns apperror.ErrValidation, apperror.ErrNotFound, etc.
// This function maps those to 400, 404, etc.
//
// errors.Is() UNWRAPPING:
// errors.Is(err, target) walks the entire error chain (via Unwrap())
// to see if `target` appears anywhere:
//
//	service returns: fmt.Errorf("replacing catalog: %w", apperror.ValidationFailed(...))
//	which wraps:     AppError{Err: ErrValidation, Message: "..."}
//	errors.Is walks: outer error → AppError → ErrValidation ✓ match!
//
// ErrDuplicateUsername wraps ErrConflict, so it lands on 409 via the
// conflict case.
func writeError(w http.ResponseWriter, err error) {
	// Try to extract our AppError for the human-readable message
	var appErr *apperror.AppError

	// errors.As() is like errors.Is() but extracts the error value.
	// It walks the chain and fills appErr if it finds an *AppError.
	if errors.As(err, &appErr) {
		// A typed application error: map it to HTTP
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnauthorized), errors.Is(err, apperror.ErrInvalidCredentials):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		case errors.Is(err, apperror.ErrSync):
			status = http.StatusBadGateway // 502
			errorType = "upstream_error"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error: return a generic 500.
	// NEVER expose internal error details to the client. The raw message
	// might contain SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
