package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sakif/coin-tracker/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A plain string key like
// "username" could be read or shadowed by any package that knows the string.
// Only this package can create a contextKey, so only this package can read or
// write the username value.
type contextKey string

const usernameKey contextKey = "username"

// SignInPath is where unauthenticated browsers are sent.
const SignInPath = "/signin"

// RequireSession is a middleware that gates protected routes on an active
// session.
//
// On success it resolves the session once and puts the username in the
// request context, so handlers read it with UsernameFromContext instead of
// touching the cookie. On failure it redirects to the sign-in page with
// 303 See Other and the wrapped handler never runs.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
func RequireSession(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := sessions.RequireSession(r)
			if err != nil {
				if !errors.Is(err, apperror.ErrUnauthorized) {
					sessions.logger.Error("session lookup failed", "error", err)
				}
				// A stale cookie would bounce the user straight back here.
				if TokenFromRequest(r) != "" {
					sessions.ClearCookie(w)
				}
				http.Redirect(w, r, SignInPath, http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUsername(r.Context(), username)))
		})
	}
}

// ContextWithUsername returns a copy of ctx carrying username.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext retrieves the signed-in username from the request
// context.
//
// Returns ("", false) for a request that didn't pass through RequireSession.
func UsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok && name != ""
}
