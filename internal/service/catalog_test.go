package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================

// fakeItemRepo is an in-memory repository.ItemRepository.
type fakeItemRepo struct {
	mu     sync.Mutex
	items  map[int64]model.Item
	nextID int64

	replaceErr error
	replaced   int // number of ReplaceItems calls that reached the store
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[int64]model.Item), nextID: 1}
}

func (f *fakeItemRepo) ListItems(_ context.Context) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeItemRepo) GetItem(_ context.Context, id int64) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, apperror.NotFound("item", strconv.FormatInt(id, 10))
	}
	return &it, nil
}

func (f *fakeItemRepo) CreateItem(_ context.Context, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.nextID
	f.nextID++
	f.items[item.ID] = *item
	return nil
}

func (f *fakeItemRepo) UpdateItem(_ context.Context, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return apperror.NotFound("item", strconv.FormatInt(item.ID, 10))
	}
	f.items[item.ID] = *item
	return nil
}

func (f *fakeItemRepo) DeleteItem(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeItemRepo) ReplaceItems(_ context.Context, items []model.NewItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced++
	f.items = make(map[int64]model.Item, len(items))
	for _, it := range items {
		f.items[f.nextID] = model.Item{ID: f.nextID, Name: it.Name, Price: it.Price, MarketCap: it.MarketCap}
		f.nextID++
	}
	return nil
}

func f64(v float64) *float64 { return &v }

func newTestCatalogService(repo *fakeItemRepo) *CatalogService {
	return NewCatalogService(repo, discardLogger())
}

// =========================================================================
// INSERT / GET
// =========================================================================

func TestCatalogInsert_Success(t *testing.T) {
	svc := newTestCatalogService(newFakeItemRepo())

	item, err := svc.Insert(context.Background(), "  Bitcoin ", f64(50000), nil)
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, "Bitcoin", item.Name, "name should be trimmed")
	assert.Nil(t, item.MarketCap)
}

func TestCatalogInsert_Validation(t *testing.T) {
	tests := []struct {
		name      string
		itemName  string
		price     *float64
		marketCap *float64
		wantField string
	}{
		{"empty name", "", nil, nil, "name"},
		{"whitespace name", "   ", nil, nil, "name"},
		{"long name", strings.Repeat("x", MaxItemNameLength+1), nil, nil, "name"},
		{"negative price", "BTC", f64(-1), nil, "price"},
		{"NaN price", "BTC", f64(math.NaN()), nil, "price"},
		{"infinite market cap", "BTC", nil, f64(math.Inf(1)), "market_cap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCatalogService(newFakeItemRepo())

			_, err := svc.Insert(context.Background(), tt.itemName, tt.price, tt.marketCap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestCatalogInsert_NameLengthCountsCharacters(t *testing.T) {
	svc := newTestCatalogService(newFakeItemRepo())

	// Three bytes per rune: the byte length is well over the limit.
	atLimit := strings.Repeat("币", MaxItemNameLength)
	item, err := svc.Insert(context.Background(), atLimit, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, atLimit, item.Name)

	_, err = svc.Insert(context.Background(), atLimit+"币", nil, nil)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "name", appErr.Field)
	assert.Contains(t, appErr.Message, "characters")
}

func TestCatalogGet_NotFound(t *testing.T) {
	svc := newTestCatalogService(newFakeItemRepo())

	for _, id := range []int64{0, -3, 99} {
		_, err := svc.Get(context.Background(), id)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "id %d: got %v", id, err)
	}
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestCatalogUpdate_GetReflectsLastUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestCatalogService(newFakeItemRepo())
	item, err := svc.Insert(ctx, "Bitcoin", f64(50000), f64(1e12))
	require.NoError(t, err)

	_, err = svc.Update(ctx, item.ID, "BTC", f64(1), f64(2))
	require.NoError(t, err)
	_, err = svc.Update(ctx, item.ID, "BTC v2", f64(3), nil)
	require.NoError(t, err)

	got, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTC v2", got.Name)
	assert.Equal(t, 3.0, *got.Price)
	assert.Nil(t, got.MarketCap, "full overwrite clears omitted fields")
}

func TestCatalogUpdate_NotFound(t *testing.T) {
	svc := newTestCatalogService(newFakeItemRepo())

	_, err := svc.Update(context.Background(), 7, "Ghost", nil, nil)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func TestCatalogUpdate_ValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	svc := newTestCatalogService(newFakeItemRepo())
	item, err := svc.Insert(ctx, "Bitcoin", f64(1), nil)
	require.NoError(t, err)

	_, err = svc.Update(ctx, item.ID, "", nil, nil)
	require.True(t, errors.Is(err, apperror.ErrValidation))

	got, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", got.Name)
}

func TestCatalogDelete_Twice(t *testing.T) {
	ctx := context.Background()
	svc := newTestCatalogService(newFakeItemRepo())
	item, err := svc.Insert(ctx, "Dogecoin", nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, item.ID))
	require.NoError(t, svc.Delete(ctx, item.ID))
}

// =========================================================================
// REPLACE ALL
// =========================================================================

func TestCatalogReplaceAll_ThenInsert(t *testing.T) {
	ctx := context.Background()
	svc := newTestCatalogService(newFakeItemRepo())

	require.NoError(t, svc.ReplaceAll(ctx, []model.NewItem{{Name: "BTC", Price: f64(50000), MarketCap: f64(1e12)}}))

	items, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BTC", items[0].Name)

	_, err = svc.Insert(ctx, "ETH", f64(3000), f64(4e11))
	require.NoError(t, err)

	items, err = svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCatalogReplaceAll_BadEntryLeavesStoreAlone(t *testing.T) {
	ctx := context.Background()
	repo := newFakeItemRepo()
	svc := newTestCatalogService(repo)
	_, err := svc.Insert(ctx, "Keep me", nil, nil)
	require.NoError(t, err)

	err = svc.ReplaceAll(ctx, []model.NewItem{{Name: "BTC"}, {Name: ""}})
	require.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Zero(t, repo.replaced)

	items, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Keep me", items[0].Name)
}

func TestCatalogReplaceAll_RepositoryError(t *testing.T) {
	repo := newFakeItemRepo()
	repo.replaceErr = errors.New("disk full")
	svc := newTestCatalogService(repo)

	err := svc.ReplaceAll(context.Background(), []model.NewItem{{Name: "BTC"}})
	assert.Error(t, err)
}
