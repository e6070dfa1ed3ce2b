// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage implements all of them on one *sql.DB.
package repository

import (
	"context"
	"time"

	"github.com/sakif/coin-tracker/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// CreateUser inserts a user and sets user.ID. A taken username returns
	// an error matching apperror.ErrDuplicateUsername.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByUsername returns apperror.ErrNotFound if no row matches.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// ItemRepository is the catalog store.
type ItemRepository interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	CreateItem(ctx context.Context, item *model.Item) error
	// UpdateItem overwrites every column of the row with item.ID.
	UpdateItem(ctx context.Context, item *model.Item) error
	// DeleteItem does not fail when the row is already gone.
	DeleteItem(ctx context.Context, id int64) error
	// ReplaceItems swaps the whole catalog for items in one transaction.
	ReplaceItems(ctx context.Context, items []model.NewItem) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSession returns apperror.ErrNotFound for a missing or expired row.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// PurgeExpiredSessions removes rows that expired before now and reports
	// how many were removed.
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
