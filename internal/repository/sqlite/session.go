package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores a new session row. Times are kept as unix seconds.
func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, username, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		session.ID,
		session.Username,
		session.ExpiresAt.Unix(),
		session.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id if it has not expired.
// Missing and expired rows both return apperror.ErrNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s         model.Session
		expiresAt int64
		createdAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, expires_at, created_at
		 FROM sessions
		 WHERE id = ? AND expires_at > ?`,
		id, time.Now().Unix(),
	).Scan(&s.ID, &s.Username, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}

	s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

// DeleteSession removes a session. Unknown ids are ignored.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes every session whose expiry is not after now.
func (db *DB) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
