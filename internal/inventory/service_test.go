package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	stock *MemoryStock
}

type memoryTx struct {
	*MemoryStock
}

func newMemoryRepo(items ...Item) *memoryRepo {
	return &memoryRepo{stock: NewMemoryStock(items...)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.stock.Snapshot()
	if err := fn(ctx, &memoryTx{MemoryStock: r.stock}); err != nil {
		r.stock.Restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	it, ok := r.stock.Item(id)
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	var out []Item
	for _, it := range r.stock.All() {
		if filters.LowStockOnly && !it.LowStock() {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context) ([]Item, error) {
	items, _, err := r.ListItems(ctx, ListFilters{LowStockOnly: true})
	return items, err
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	for _, it := range tx.All() {
		if it.Code == item.Code {
			return shared.ErrDuplicate
		}
	}
	tx.Put(item)
	return nil
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item Item) error {
	if _, ok := tx.Item(item.ID); !ok {
		return ErrItemNotFound
	}
	tx.Put(item)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingInvalidator struct {
	collections []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, collection string) {
	r.collections = append(r.collections, collection)
}

func TestCreateItemBooksOpeningStock(t *testing.T) {
	repo := newMemoryRepo()
	inv := &recordingInvalidator{}
	audit := &recordingAudit{}
	svc := NewService(repo, audit, inv)

	item, err := svc.CreateItem(context.Background(), CreateItemRequest{Code: "WID-1", Name: "Widget", UnitPrice: 12.5, Stock: 40, ReorderLevel: 5})
	require.NoError(t, err)
	require.Equal(t, "pcs", item.Unit)
	require.Equal(t, 40.0, item.Stock)

	stored, ok := repo.stock.Item(item.ID)
	require.True(t, ok)
	require.Equal(t, 40.0, stored.Stock)
	require.Len(t, repo.stock.Movements(), 1)
	require.Equal(t, "opening", repo.stock.Movements()[0].Reason)
	require.Equal(t, []string{"items"}, inv.collections)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory:item_create", audit.logs[0].Action)
}

func TestCreateItemDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemRequest{Code: "A", Name: "Alpha"})
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, CreateItemRequest{Code: "A", Name: "Again"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.CreateItem(context.Background(), CreateItemRequest{Code: "", Name: "x", UnitPrice: -1})

	var vErr *shared.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Contains(t, vErr.Fields, "code")
	require.Contains(t, vErr.Fields, "unit_price")
}

func TestAdjustStockNeverBelowZero(t *testing.T) {
	id := uuid.New()
	repo := newMemoryRepo(Item{ID: id, Code: "BOLT", Name: "Bolt", Stock: 3})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, id, AdjustStockRequest{Delta: -5, Reason: "count"})
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	rule, ok := shared.AsRuleViolation(err)
	require.True(t, ok)
	require.Equal(t, RuleInsufficientStock, rule.Rule)
	require.Equal(t, "insufficient stock for BOLT: requested 5, available 3", rule.Message)

	stored, _ := repo.stock.Item(id)
	require.Equal(t, 3.0, stored.Stock)
	require.Empty(t, repo.stock.Movements())

	item, err := svc.AdjustStock(ctx, id, AdjustStockRequest{Delta: -3, Reason: "count"})
	require.NoError(t, err)
	require.Equal(t, 0.0, item.Stock)
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	id := uuid.New()
	svc := NewService(newMemoryRepo(Item{ID: id, Code: "X", Name: "X"}), nil, nil)

	_, err := svc.AdjustStock(context.Background(), id, AdjustStockRequest{Delta: 0, Reason: "noop"})

	var vErr *shared.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Contains(t, vErr.Fields, "delta")
}

func TestAdjustUnknownItem(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.AdjustStock(context.Background(), uuid.New(), AdjustStockRequest{Delta: 1, Reason: "found"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckAvailabilitySumsPerItem(t *testing.T) {
	id := uuid.New()
	items := map[uuid.UUID]Item{id: {ID: id, Code: "NUT", Stock: 10}}

	require.NoError(t, CheckAvailability(items, []StockRequest{{ItemID: id, Quantity: 4}, {ItemID: id, Quantity: 6}}))

	err := CheckAvailability(items, []StockRequest{{ItemID: id, Quantity: 6}, {ItemID: id, Quantity: 6}})
	rule, ok := shared.AsRuleViolation(err)
	require.True(t, ok)
	require.Contains(t, rule.Message, "requested 12, available 10")

	err = CheckAvailability(items, []StockRequest{{ItemID: uuid.New(), Quantity: 1}})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestUpdateItemAndLowStockList(t *testing.T) {
	id := uuid.New()
	repo := newMemoryRepo(
		Item{ID: id, Code: "A", Name: "Anchor", Stock: 10, ReorderLevel: 2},
		Item{ID: uuid.New(), Code: "B", Name: "Bracket", Stock: 1, ReorderLevel: 5},
	)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	level := 20.0
	updated, err := svc.UpdateItem(ctx, id, UpdateItemRequest{ReorderLevel: &level})
	require.NoError(t, err)
	require.Equal(t, 20.0, updated.ReorderLevel)

	low, err := svc.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	require.Equal(t, "Anchor", low[0].Name)
}

func TestHandlerAdjustConflict(t *testing.T) {
	id := uuid.New()
	svc := NewService(newMemoryRepo(Item{ID: id, Code: "A", Name: "Anchor", Stock: 1}), nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api/items", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/items/"+id.String()+"/adjust", strings.NewReader(`{"delta":-2,"reason":"damaged"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "insufficient stock for A")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/items/low-stock", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/items/", strings.NewReader(`{"code":"N","name":"Nail","stock":3}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
}
