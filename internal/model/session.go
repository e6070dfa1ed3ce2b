package model

import "time"

// Session is the server-side half of an authenticated session.
// The client holds a signed token naming this ID; deleting the row ends the
// session even if the client still has the token.
type Session struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the session is past its expiry at time now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
