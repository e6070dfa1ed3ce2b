package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

var _ repository.ItemRepository = (*DB)(nil)

// replaceChunkSize bounds the rows per INSERT in ReplaceItems. Three bound
// parameters per row keeps a chunk far below SQLite's variable limit.
const replaceChunkSize = 300

var itemColumns = []string{"id", "name", "price", "market_cap"}

// ListItems returns the whole catalog in id order.
//
// No pagination: the catalog is a provider snapshot (one page of coins) plus
// whatever users add by hand, so a full scan is small.
func (db *DB) ListItems(ctx context.Context) ([]model.Item, error) {
	return listItems(ctx, db.conn)
}

func listItems(ctx context.Context, q dbtx) ([]model.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building list query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items: %w", err)
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}

	return items, nil
}

// GetItem retrieves a single item by its ID.
// Returns apperror.ErrNotFound if the item doesn't exist.
func (db *DB) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building get query: %w", err)
	}

	item, err := scanItem(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("item", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting item %d: %w", id, err)
	}

	return item, nil
}

// CreateItem inserts one item and sets item.ID from the new rowid.
func (db *DB) CreateItem(ctx context.Context, item *model.Item) error {
	query, args, err := sq.Insert("items").
		Columns("name", "price", "market_cap").
		Values(item.Name, item.Price, item.MarketCap).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building insert: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: creating item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading item id: %w", err)
	}
	item.ID = id
	return nil
}

// UpdateItem overwrites name, price and market_cap of the row with item.ID.
//
// Every column is written, including nil → NULL. There is no partial patch:
// the caller sends the full row. Zero rows affected means the id is absent.
func (db *DB) UpdateItem(ctx context.Context, item *model.Item) error {
	query, args, err := sq.Update("items").
		Set("name", item.Name).
		Set("price", item.Price).
		Set("market_cap", item.MarketCap).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building update: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating item %d: %w", item.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("item", strconv.FormatInt(item.ID, 10))
	}

	return nil
}

// DeleteItem removes an item by its ID. Deleting an id that doesn't exist
// is not an error, so a retried or double-submitted delete is harmless.
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	query, args, err := sq.Delete("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building delete: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: deleting item %d: %w", id, err)
	}
	return nil
}

// ReplaceItems clears the catalog and inserts items, all in one transaction.
//
// ATOMICITY:
// The DELETE and every INSERT chunk commit together or not at all. With WAL
// enabled, a ListItems running concurrently reads from the last committed
// snapshot, so it sees either the full old catalog or the full new one.
func (db *DB) ReplaceItems(ctx context.Context, items []model.NewItem) error {
	return db.withTx(ctx, func(tx dbtx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
			return fmt.Errorf("sqlite: clearing items: %w", err)
		}

		for start := 0; start < len(items); start += replaceChunkSize {
			end := min(start+replaceChunkSize, len(items))

			insert := sq.Insert("items").Columns("name", "price", "market_cap")
			for _, it := range items[start:end] {
				insert = insert.Values(it.Name, it.Price, it.MarketCap)
			}

			query, args, err := insert.ToSql()
			if err != nil {
				return fmt.Errorf("sqlite: building bulk insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("sqlite: inserting items %d-%d: %w", start, end, err)
			}
		}

		return nil
	})
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		item      model.Item
		price     sql.NullFloat64
		marketCap sql.NullFloat64
	)

	if err := row.Scan(&item.ID, &item.Name, &price, &marketCap); err != nil {
		return nil, err
	}

	if price.Valid {
		item.Price = &price.Float64
	}
	if marketCap.Valid {
		item.MarketCap = &marketCap.Float64
	}
	return &item, nil
}
