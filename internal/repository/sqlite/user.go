package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user row and fills in user.ID and user.CreatedAt.
//
// NO PRE-CHECK:
// We don't SELECT first to see whether the username is taken. Two sign-ups
// racing for the same name would both pass such a check. The UNIQUE
// constraint on users.username is the single source of truth, and we
// translate its violation into apperror.DuplicateUsername.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Username,
		user.PasswordHash,
		now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateUsername(user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}

	user.ID = id
	user.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	return nil
}

// GetUserByUsername retrieves a user by login name.
// Returns apperror.ErrNotFound if no user exists with that name.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var (
		u         model.User
		createdAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}

	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// isUniqueViolation reports whether err is SQLite's UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
