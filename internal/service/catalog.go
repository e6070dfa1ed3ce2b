// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages, writes JSON
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes SQLite
//
// Services take repository interfaces, not *sqlite.DB, so tests pass
// in-memory fakes (see catalog_test.go) and never touch a database.
//
// THE DEPENDENCY CHAIN:
//
//	server.go creates:  DB → Service → Handler
//	At runtime:         Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

// MaxItemNameLength caps item names. Provider names are far shorter; the
// limit exists for hand-entered items.
const MaxItemNameLength = 100

// CatalogService handles business logic for the global item catalog.
//
// Items are NOT scoped per user: every signed-in user sees and edits the
// same catalog.
type CatalogService struct {
	repo   repository.ItemRepository
	logger *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo repository.ItemRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger,
	}
}

// ListAll returns every item ordered by id. There is no pagination.
func (s *CatalogService) ListAll(ctx context.Context) ([]model.Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		s.logger.Error("failed to list items", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// Get returns one item. Returns apperror.ErrNotFound if it doesn't exist.
func (s *CatalogService) Get(ctx context.Context, id int64) (*model.Item, error) {
	if id <= 0 {
		return nil, apperror.NotFound("item", strconv.FormatInt(id, 10))
	}
	return s.repo.GetItem(ctx, id)
}

// Insert validates and stores a new item. price and marketCap may be nil.
func (s *CatalogService) Insert(ctx context.Context, name string, price, marketCap *float64) (*model.Item, error) {
	// === VALIDATION ===
	name, err := validateItem(name, price, marketCap)
	if err != nil {
		return nil, err
	}

	item := &model.Item{Name: name, Price: price, MarketCap: marketCap}

	// === DELEGATE TO REPOSITORY ===
	// The repo assigns the ID.
	if err := s.repo.CreateItem(ctx, item); err != nil {
		s.logger.Error("failed to create item",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating item: %w", err)
	}

	s.logger.Info("item created",
		slog.Int64("id", item.ID),
		slog.String("name", item.Name),
	)
	return item, nil
}

// Update overwrites every field of an item.
//
// FULL OVERWRITE, NOT PATCH:
// A nil price or market cap clears the stored value; it does not mean
// "leave unchanged". The edit form always submits all three fields, so what
// the user sees in the form is exactly what gets stored.
//
// Returns apperror.ErrNotFound when no item has this id.
func (s *CatalogService) Update(ctx context.Context, id int64, name string, price, marketCap *float64) (*model.Item, error) {
	if id <= 0 {
		return nil, apperror.NotFound("item", strconv.FormatInt(id, 10))
	}

	name, err := validateItem(name, price, marketCap)
	if err != nil {
		return nil, err
	}

	item := &model.Item{ID: id, Name: name, Price: price, MarketCap: marketCap}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("item updated",
		slog.Int64("id", item.ID),
		slog.String("name", item.Name),
	)
	return item, nil
}

// Delete removes an item. Deleting an id that doesn't exist is not an error.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("deleting item %d: %w", id, err)
	}

	s.logger.Info("item deleted", slog.Int64("id", id))
	return nil
}

// ReplaceAll swaps the whole catalog for items in one transaction.
//
// Every entry is validated before the store is touched, so a bad snapshot
// leaves the current catalog as it was.
func (s *CatalogService) ReplaceAll(ctx context.Context, items []model.NewItem) error {
	clean := make([]model.NewItem, len(items))
	for i, it := range items {
		name, err := validateItem(it.Name, it.Price, it.MarketCap)
		if err != nil {
			return fmt.Errorf("snapshot entry %d: %w", i, err)
		}
		clean[i] = model.NewItem{Name: name, Price: it.Price, MarketCap: it.MarketCap}
	}

	if err := s.repo.ReplaceItems(ctx, clean); err != nil {
		s.logger.Error("failed to replace catalog",
			slog.Int("items", len(clean)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("replacing catalog: %w", err)
	}

	s.logger.Info("catalog replaced", slog.Int("items", len(clean)))
	return nil
}

// validateItem trims the name and checks every field. It returns the
// trimmed name.
func validateItem(name string, price, marketCap *float64) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "item name is required")
	}
	if utf8.RuneCountInString(name) > MaxItemNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("item name must be %d characters or less", MaxItemNameLength))
	}
	if err := validateAmount("price", price); err != nil {
		return "", err
	}
	if err := validateAmount("market_cap", marketCap); err != nil {
		return "", err
	}
	return name, nil
}

// validateAmount accepts nil (unknown) or a finite, non-negative number.
func validateAmount(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be a non-negative number", strings.ReplaceAll(field, "_", " ")))
	}
	return nil
}
