// Package middleware contains HTTP middleware functions.
//
// WHAT IS MIDDLEWARE?
// Middleware is a function that wraps an HTTP handler to add cross-cutting behaviour
// (logging, auth, CORS, etc.) without modifying the handler itself.
//
// The pattern is:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // Do something BEFORE the handler runs
//	        next.ServeHTTP(w, r)  // Call the actual handler
//	        // Do something AFTER the handler runs
//	    })
//	}
//
// This is the "decorator pattern": we wrap the real handler with extra behaviour.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestRecorder counts served requests. *metrics.Collector implements it.
type RequestRecorder interface {
	RecordHTTPRequest(method string, status int)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Go's http.ResponseWriter doesn't expose the status code after WriteHeader is called,
// so we wrap it to track it ourselves. This is a common Go pattern.
type responseWriter struct {
	http.ResponseWriter       // Embedding: this struct "inherits" all methods
	statusCode          int   // Our addition: track the status code
	written             int64 // Track bytes written
}

// WriteHeader captures the status code before delegating to the embedded ResponseWriter.
// By defining this method, we "override" the embedded ResponseWriter's WriteHeader.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures bytes written and delegates to the embedded ResponseWriter.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logger returns an HTTP middleware that logs each request using Go's slog package
// and, when recorder is non-nil, counts it by method and status.
//
// Each log line includes the request ID set by chi's RequestID middleware,
// so place Logger after it.
func Logger(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Record when the request started
			start := time.Now()

			// Wrap the ResponseWriter so we can capture status code and bytes
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // Default if WriteHeader is never called
			}

			// Call the next handler in the chain
			next.ServeHTTP(wrapped, r)

			if recorder != nil {
				recorder.RecordHTTPRequest(r.Method, wrapped.statusCode)
			}

			// Health checks and scrapes hit every few seconds; keep them out of info logs.
			level := slog.LevelInfo
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				level = slog.LevelDebug
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			)
		})
	}
}
