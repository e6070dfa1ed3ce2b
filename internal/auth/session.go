package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

// CookieName is the name of the cookie holding the signed session token.
const CookieName = "session"

// SessionManager starts, ends and resolves sign-in sessions.
//
// A session lives in two places: a row in the sessions table (the source of
// truth) and a signed token in the client's cookie that names that row. A
// request is authenticated only if both agree. Deleting the row ends the
// session even if the client kept a copy of the cookie.
type SessionManager struct {
	sessions repository.SessionRepository
	tokens   *TokenService
	ttl      time.Duration
	secure   bool
	logger   *slog.Logger

	now func() time.Time
}

// NewSessionManager creates a SessionManager. secure controls the cookie's
// Secure flag and should be true whenever the app is served over HTTPS.
func NewSessionManager(
	sessions repository.SessionRepository,
	tokens *TokenService,
	ttl time.Duration,
	secure bool,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		tokens:   tokens,
		ttl:      ttl,
		secure:   secure,
		logger:   logger,
		now:      time.Now,
	}
}

// Start records a new session for username and returns the signed token the
// client should present on later requests.
func (m *SessionManager) Start(ctx context.Context, username string) (string, time.Time, error) {
	now := m.now()
	session := &model.Session{
		ID:        xid.New().String(),
		Username:  username,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: starting session: %w", err)
	}

	token, err := m.tokens.Issue(session.ID, username, session.ExpiresAt)
	if err != nil {
		return "", time.Time{}, err
	}

	m.logger.Info("session started", "username", username, "session_id", session.ID)
	return token, session.ExpiresAt, nil
}

// End deletes the session named by token. A token that doesn't verify, or
// whose session is already gone, is not an error: the caller is signed out
// either way.
func (m *SessionManager) End(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil
	}

	if err := m.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("auth: ending session: %w", err)
	}

	m.logger.Info("session ended", "username", claims.Username, "session_id", claims.SessionID)
	return nil
}

// Resolve maps a token to the signed-in username. Every failure (missing,
// malformed, expired, foreign signature, revoked) is apperror.ErrUnauthorized.
// Store errors other than not-found are returned as-is.
func (m *SessionManager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperror.Unauthorized("sign in required")
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		return "", apperror.Unauthorized("session is invalid or expired")
	}

	session, err := m.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("session has ended")
		}
		return "", fmt.Errorf("auth: resolving session: %w", err)
	}

	if session.Username != claims.Username || session.Expired(m.now()) {
		return "", apperror.Unauthorized("session is invalid or expired")
	}

	return session.Username, nil
}

// RequireSession reads the session cookie from r and resolves it.
func (m *SessionManager) RequireSession(r *http.Request) (string, error) {
	return m.Resolve(r.Context(), TokenFromRequest(r))
}

// PurgeExpired removes session rows whose expiry has passed.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.PurgeExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("auth: purging sessions: %w", err)
	}
	return n, nil
}

// SetCookie writes the session cookie.
//
// HttpOnly keeps the token away from JavaScript. SameSite=Lax stops other
// sites from sending it on cross-site POSTs.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie tells the browser to drop the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session cookie's value, or "" if absent.
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
