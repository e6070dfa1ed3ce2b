// Package pricesync keeps the catalog in step with the market-data provider.
//
// FETCH, THEN SWAP:
// A sync downloads the whole snapshot first and only then replaces the
// catalog, in one transaction. If the download fails, times out, or comes
// back empty, the catalog is left exactly as it was. Clearing first and
// fetching second would leave users staring at an empty list whenever the
// provider hiccups.
package pricesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/market"
	"github.com/sakif/coin-tracker/internal/metrics"
	"github.com/sakif/coin-tracker/internal/model"
)

// QuoteFetcher downloads the current snapshot. *market.Client implements it.
type QuoteFetcher interface {
	Fetch(ctx context.Context) ([]market.Quote, error)
}

// CatalogReplacer swaps the catalog. *service.CatalogService implements it.
type CatalogReplacer interface {
	ReplaceAll(ctx context.Context, items []model.NewItem) error
}

// Syncer runs one fetch-then-swap cycle at a time.
type Syncer struct {
	fetcher QuoteFetcher
	catalog CatalogReplacer
	metrics metrics.SyncRecorder
	logger  *slog.Logger

	// mu serializes Sync so the startup run and a scheduler tick can't
	// interleave two swaps.
	mu sync.Mutex
}

// NewSyncer creates a Syncer.
func NewSyncer(fetcher QuoteFetcher, catalog CatalogReplacer, recorder metrics.SyncRecorder, logger *slog.Logger) *Syncer {
	return &Syncer{
		fetcher: fetcher,
		catalog: catalog,
		metrics: recorder,
		logger:  logger,
	}
}

// Sync fetches a fresh snapshot and replaces the catalog with it.
//
// Provider failures and unusable snapshots match apperror.ErrSync. The caller
// may simply retry later.
func (s *Syncer) Sync(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.RecordSync(err == nil, time.Since(start))
	}()

	quotes, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return apperror.SyncFailed("price API returned no coins", errors.New("empty snapshot"))
	}

	items := make([]model.NewItem, len(quotes))
	for i, q := range quotes {
		items[i] = model.NewItem{Name: q.Name, Price: q.CurrentPrice, MarketCap: q.MarketCap}
	}

	if err := s.catalog.ReplaceAll(ctx, items); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return apperror.SyncFailed("price API returned an invalid coin", err)
		}
		return fmt.Errorf("pricesync: storing snapshot: %w", err)
	}

	s.metrics.SetCatalogSize(len(items))
	s.logger.Info("price sync completed",
		slog.Int("items", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
