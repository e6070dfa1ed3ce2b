package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "coin-tracker"

// TokenService signs and verifies the session cookie value.
//
// The cookie is a JWT (HS256) whose "jti" is the server-side session ID and
// whose "sub" is the username. The signature means a client can't forge or
// edit a session ID. Revocation still goes through the sessions table:
// see SessionManager.
type TokenService struct {
	secret []byte
}

// SessionClaims is what a verified token tells us.
type SessionClaims struct {
	SessionID string
	Username  string
	ExpiresAt time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production,
// e.g. SESSION_SECRET=$(openssl rand -hex 32).
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Issue signs a token for the given session, valid until expiresAt.
func (s *TokenService) Issue(sessionID, username string, expiresAt time.Time) (string, error) {
	c := jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   username,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
//
// Checks: HS256 only (no "none" or algorithm confusion), our issuer, an
// expiry that is present and in the future, and non-empty jti and sub.
func (s *TokenService) Parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.ID == "" || c.Subject == "" {
		return nil, fmt.Errorf("auth: token is missing session id or subject")
	}

	return &SessionClaims{
		SessionID: c.ID,
		Username:  c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
