// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The whole app is one process with a small catalog and a handful of users.
// An embedded database keeps deployment to a single binary plus one file.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so there is no CGo
// and no C compiler needed to build or cross-compile.
//
// ONE POOL, MANY CONNECTIONS:
// sql.DB is a connection pool. PRAGMAs run with db.Exec only configure the
// one connection that happened to run them, so every PRAGMA we rely on is
// passed in the DSN instead (modernc applies `_pragma=` parameters to each
// new connection):
//   - journal_mode(WAL): readers see a consistent snapshot while a writer
//     is mid-transaction. ReplaceItems depends on this.
//   - busy_timeout(5000): a second writer waits up to 5s for the lock
//     instead of failing with SQLITE_BUSY.
//   - foreign_keys(1): off by default in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// DB wraps a sql.DB connection pool and provides repository methods.
// It implements UserRepository, ItemRepository and SessionRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/coins.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database, pinned to one connection because
//     every new connection to ":memory:" would get its own empty database
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// sql.Open doesn't connect. Ping so a bad path fails here rather than
	// on the first request.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + pragmas
}

// migrate applies the embedded migrations with golang-migrate.
//
// The migrate instance is deliberately not closed: closing it would close
// the database driver, and that driver wraps our shared pool.
func (db *DB) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// helpers can run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction: commit on nil, rollback on error or panic.
// Panics are re-raised after the rollback.
func (db *DB) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlite: committing transaction: %w", cerr)
		}
	}()

	return fn(tx)
}
