package pricesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/market"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository/sqlite"
	"github.com/sakif/coin-tracker/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type fakeFetcher struct {
	quotes []market.Quote
	err    error
	calls  atomic.Int32
}

func (f *fakeFetcher) Fetch(context.Context) ([]market.Quote, error) {
	f.calls.Add(1)
	return f.quotes, f.err
}

type fakeCatalog struct {
	mu       sync.Mutex
	snapshot []model.NewItem
	calls    int
	err      error
}

func (f *fakeCatalog) ReplaceAll(_ context.Context, items []model.NewItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.snapshot = items
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	successes int
	failures  int
	size      int
}

func (r *fakeRecorder) RecordSync(success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.successes++
	} else {
		r.failures++
	}
}

func (r *fakeRecorder) SetCatalogSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 { return &v }

// =========================================================================
// SYNC
// =========================================================================

func TestSync_ReplacesCatalog(t *testing.T) {
	fetcher := &fakeFetcher{quotes: []market.Quote{
		{Name: "Bitcoin", CurrentPrice: f64(50000), MarketCap: f64(1e12)},
		{Name: "Tiny", CurrentPrice: nil, MarketCap: nil},
	}}
	catalog := &fakeCatalog{}
	rec := &fakeRecorder{}

	err := NewSyncer(fetcher, catalog, rec, discardLogger()).Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, catalog.snapshot, 2)
	assert.Equal(t, "Bitcoin", catalog.snapshot[0].Name)
	assert.Equal(t, 50000.0, *catalog.snapshot[0].Price)
	assert.Nil(t, catalog.snapshot[1].Price)

	assert.Equal(t, 1, rec.successes)
	assert.Equal(t, 2, rec.size)
}

func TestSync_FetchFailureLeavesCatalogAlone(t *testing.T) {
	fetcher := &fakeFetcher{err: apperror.SyncFailed("price API unreachable", errors.New("boom"))}
	catalog := &fakeCatalog{}
	rec := &fakeRecorder{}

	err := NewSyncer(fetcher, catalog, rec, discardLogger()).Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrSync))
	assert.Zero(t, catalog.calls, "store must not be touched when the fetch fails")
	assert.Equal(t, 1, rec.failures)
}

func TestSync_EmptySnapshotIsSyncError(t *testing.T) {
	catalog := &fakeCatalog{}
	s := NewSyncer(&fakeFetcher{quotes: []market.Quote{}}, catalog, &fakeRecorder{}, discardLogger())

	err := s.Sync(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrSync), "got %v", err)
	assert.Zero(t, catalog.calls)
}

func TestSync_InvalidQuoteIsSyncError(t *testing.T) {
	catalog := &fakeCatalog{err: apperror.ValidationFailed("price", "price must be a non-negative number")}
	s := NewSyncer(&fakeFetcher{quotes: []market.Quote{{Name: "Weird", CurrentPrice: f64(-1)}}}, catalog, &fakeRecorder{}, discardLogger())

	err := s.Sync(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrSync), "got %v", err)
}

func TestSync_StoreFailureIsNotSyncError(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("database is locked")}
	rec := &fakeRecorder{}
	s := NewSyncer(&fakeFetcher{quotes: []market.Quote{{Name: "BTC"}}}, catalog, rec, discardLogger())

	err := s.Sync(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrSync))
	assert.Equal(t, 1, rec.failures)
}

// =========================================================================
// END TO END: provider → syncer → service → sqlite
// =========================================================================

func newTestCatalog(t *testing.T) *service.CatalogService {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return service.NewCatalogService(db, discardLogger())
}

func TestSync_EndToEnd_FailedFetchKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"name":"Bitcoin","current_price":50000,"market_cap":1e12},
			{"name":"Ethereum","current_price":3000,"market_cap":4e11}]`)
	}))
	t.Cleanup(srv.Close)

	client := market.NewClient(market.Options{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())
	syncer := NewSyncer(client, catalog, &fakeRecorder{}, discardLogger())

	require.NoError(t, syncer.Sync(ctx))
	items, err := catalog.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	fail.Store(true)
	err = syncer.Sync(ctx)
	require.True(t, errors.Is(err, apperror.ErrSync), "got %v", err)

	items, err = catalog.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2, "a failed sync must keep the previous catalog")
	assert.Equal(t, "Bitcoin", items[0].Name)
	assert.Equal(t, "Ethereum", items[1].Name)
}

// Repeated concurrent syncs must each leave one whole snapshot behind.
func TestSync_ConcurrentCallsAreSerialized(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	fetcher := &fakeFetcher{quotes: []market.Quote{{Name: "A"}, {Name: "B"}, {Name: "C"}}}
	syncer := NewSyncer(fetcher, catalog, &fakeRecorder{}, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, syncer.Sync(ctx))
		}()
	}
	wg.Wait()

	items, err := catalog.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, int32(5), fetcher.calls.Load())
}
