package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/auth"
	"github.com/sakif/coin-tracker/internal/model"
)

// Credentials is the part of service.AuthService the handlers use.
type Credentials interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Verify(ctx context.Context, username, password string) (*model.User, error)
}

// AuthHandler serves sign-up, sign-in and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUpForm / HandleSignUp → create an account
//   - HandleSignInForm / HandleSignIn → check credentials, start a session
//   - HandleLogout                    → end the session, clear the cookie
//
// Every POST answers with a redirect (Post/Redirect/Get), so refreshing the
// next page never re-submits a password.
type AuthHandler struct {
	users    Credentials
	sessions *auth.SessionManager
	pages    *Renderer
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	users Credentials,
	sessions *auth.SessionManager,
	pages *Renderer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		pages:    pages,
		logger:   logger,
	}
}

// HandleSignUpForm renders the sign-up page.
//
// HTTP: GET /signup
func (h *AuthHandler) HandleSignUpForm(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, "signup", PageData{Title: "Sign up"})
}

// HandleSignUp creates an account.
//
// HTTP: POST /signup (form: username, password)
//
// Success → flash + redirect to /signin. A taken username or invalid input
// → flash + redirect back to /signup.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.redirectWithFlash(w, r, "/signup", flashDanger, "Could not read the form.")
		return
	}

	_, err := h.users.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		var appErr *apperror.AppError
		switch {
		case errors.Is(err, apperror.ErrDuplicateUsername):
			h.pages.redirectWithFlash(w, r, "/signup", flashDanger, "Username already exists!")
		case errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr):
			h.pages.redirectWithFlash(w, r, "/signup", flashDanger, appErr.Message)
		default:
			h.logger.Error("sign-up failed", slog.String("error", err.Error()))
			h.pages.redirectWithFlash(w, r, "/signup", flashDanger, "Something went wrong. Please try again.")
		}
		return
	}

	h.pages.redirectWithFlash(w, r, auth.SignInPath, flashSuccess, "Account created successfully!")
}

// HandleSignInForm renders the sign-in page, or skips straight to the
// catalog when the browser already has a live session.
//
// HTTP: GET /signin
func (h *AuthHandler) HandleSignInForm(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.RequireSession(r); err == nil {
		http.Redirect(w, r, "/items", http.StatusSeeOther)
		return
	}
	h.pages.render(w, r, http.StatusOK, "signin", PageData{Title: "Sign in"})
}

// HandleSignIn checks credentials and starts a session.
//
// HTTP: POST /signin (form: username, password)
//
// FLOW:
//  1. Verify the username and password
//  2. End whatever session the browser already had
//  3. Start a new session and set the cookie
//  4. Redirect to /items
//
// A wrong password and an unknown username get the same message.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.redirectWithFlash(w, r, auth.SignInPath, flashDanger, "Could not read the form.")
		return
	}

	user, err := h.users.Verify(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) {
			h.logger.Info("sign-in rejected", slog.String("username", r.PostFormValue("username")))
			h.pages.redirectWithFlash(w, r, auth.SignInPath, flashDanger, "Invalid username or password!")
			return
		}
		h.logger.Error("sign-in failed", slog.String("error", err.Error()))
		h.pages.redirectWithFlash(w, r, auth.SignInPath, flashDanger, "Something went wrong. Please try again.")
		return
	}

	// A fresh session ID on every sign-in, so an ID planted before sign-in
	// is useless afterwards.
	if err := h.sessions.End(r.Context(), auth.TokenFromRequest(r)); err != nil {
		h.logger.Warn("could not end previous session", slog.String("error", err.Error()))
	}

	token, expiresAt, err := h.sessions.Start(r.Context(), user.Username)
	if err != nil {
		h.logger.Error("starting session failed", slog.String("error", err.Error()))
		h.pages.redirectWithFlash(w, r, auth.SignInPath, flashDanger, "Something went wrong. Please try again.")
		return
	}

	h.sessions.SetCookie(w, token, expiresAt)
	h.pages.redirectWithFlash(w, r, "/items", flashSuccess, "You are logged in!")
}

// HandleLogout ends the session.
//
// HTTP: GET /logout
//
// The session row is deleted, so the token stops working even if someone
// kept a copy of the cookie. Logging out without a session is fine.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), auth.TokenFromRequest(r)); err != nil {
		h.logger.Error("ending session failed", slog.String("error", err.Error()))
	}

	h.sessions.ClearCookie(w)
	h.pages.redirectWithFlash(w, r, auth.SignInPath, flashSuccess, "You have been logged out.")
}
