package procurement

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

type memoryProcRepo struct {
	mu        sync.Mutex
	counters  *sequence.MemoryStore
	stock     *inventory.MemoryStock
	pos       map[string]PurchaseOrder
	suppliers map[uuid.UUID]bool
	failWrite error
}

type memoryProcTx struct {
	*sequence.MemoryStore
	*inventory.MemoryStock
	repo *memoryProcRepo
}

func newMemoryProcRepo(items ...inventory.Item) *memoryProcRepo {
	return &memoryProcRepo{
		counters:  sequence.NewMemoryStore(),
		stock:     inventory.NewMemoryStock(items...),
		pos:       make(map[string]PurchaseOrder),
		suppliers: make(map[uuid.UUID]bool),
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters := r.counters.Snapshot()
	stock := r.stock.Snapshot()
	pos := make(map[string]PurchaseOrder, len(r.pos))
	for k, v := range r.pos {
		pos[k] = v
	}
	if err := fn(ctx, &memoryProcTx{MemoryStore: r.counters, MemoryStock: r.stock, repo: r}); err != nil {
		r.counters.Restore(counters)
		r.stock.Restore(stock)
		r.pos = pos
		return err
	}
	return nil
}

func (r *memoryProcRepo) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, nil
}

func (r *memoryProcRepo) ListPOs(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range r.pos {
		if f.Status != "" && string(po.Status) != f.Status {
			continue
		}
		if f.SupplierID != nil && po.SupplierID != *f.SupplierID {
			continue
		}
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (t *memoryProcTx) SupplierExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.repo.suppliers[id], nil
}

func (t *memoryProcTx) GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, error) {
	po, ok := t.repo.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, nil
}

func (t *memoryProcTx) InsertPO(ctx context.Context, po PurchaseOrder) error {
	if _, ok := t.repo.pos[po.ID]; ok {
		return shared.ErrDuplicate
	}
	t.repo.pos[po.ID] = po
	return nil
}

func (t *memoryProcTx) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	if t.repo.failWrite != nil {
		return t.repo.failWrite
	}
	t.repo.pos[po.ID] = po
	return nil
}

var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newTestService(repo *memoryProcRepo) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func poRequest(supplier uuid.UUID, lines ...pricing.LineItem) PurchaseOrderRequest {
	return PurchaseOrderRequest{
		SupplierID: supplier.String(),
		OrderDate:  "2025-06-01",
		ShowTax:    true,
		Freight:    15,
		Packing:    5,
		Lines:      lines,
	}
}

func TestCreatePurchaseOrder(t *testing.T) {
	repo := newMemoryProcRepo()
	supplier := uuid.New()
	repo.suppliers[supplier] = true
	svc := newTestService(repo)

	po, err := svc.CreatePurchaseOrder(context.Background(), poRequest(supplier,
		pricing.LineItem{ItemCode: "STEEL", Quantity: 10, UnitPrice: 12.5, TaxPercent: 10, DiscountPercent: 50},
	))
	require.NoError(t, err)
	assert.Equal(t, "PO2025-001", po.ID)
	assert.Equal(t, POStatusDraft, po.Status)
	assert.Equal(t, 125.0, po.Lines[0].LineTotal)
	assert.Equal(t, pricing.DocumentTotals{
		Subtotal:          125,
		TotalTax:          12.5,
		AdditionalCharges: 20,
		GrandTotal:        157.5,
	}, po.Totals)

	_, err = svc.CreatePurchaseOrder(context.Background(), poRequest(uuid.New(),
		pricing.LineItem{ItemCode: "STEEL", Quantity: 1, UnitPrice: 1},
	))
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "supplier_id")

	next, err := svc.CreatePurchaseOrder(context.Background(), poRequest(supplier,
		pricing.LineItem{ItemCode: "STEEL", Quantity: 1, UnitPrice: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, "PO2025-002", next.ID)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc := newTestService(newMemoryProcRepo())

	_, err := svc.CreatePurchaseOrder(context.Background(), PurchaseOrderRequest{SupplierID: "x", Freight: -1})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "supplier_id")
	assert.Contains(t, verr.Fields, "freight")
	assert.Contains(t, verr.Fields, "lines")

	req := poRequest(uuid.New(), pricing.LineItem{ItemCode: "A", Quantity: 1, UnitPrice: 1})
	req.ExpectedDate = "2025-05-01"
	_, err = svc.CreatePurchaseOrder(context.Background(), req)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "expected_date")
}

func TestReceivePurchaseOrderAddsStock(t *testing.T) {
	bolt := inventory.Item{ID: uuid.New(), Code: "BOLT", Name: "Bolt", Stock: 3}
	repo := newMemoryProcRepo(bolt)
	supplier := uuid.New()
	repo.suppliers[supplier] = true
	svc := newTestService(repo)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, poRequest(supplier,
		pricing.LineItem{ItemRef: bolt.ID.String(), ItemCode: "BOLT", Quantity: 20, UnitPrice: 0.5},
		pricing.LineItem{ItemCode: "FREIGHT-INS", Quantity: 1, UnitPrice: 4},
	))
	require.NoError(t, err)

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.ApprovePurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	received, err := svc.ReceivePurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)

	item, _ := repo.stock.Item(bolt.ID)
	assert.Equal(t, 23.0, item.Stock)
	moves := repo.stock.Movements()
	require.Len(t, moves, 1)
	assert.Equal(t, "purchase", moves[0].Reason)
	assert.Equal(t, po.ID, moves[0].RefID)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReceiveRollsBackStockOnFailure(t *testing.T) {
	bolt := inventory.Item{ID: uuid.New(), Code: "BOLT", Stock: 3}
	repo := newMemoryProcRepo(bolt)
	supplier := uuid.New()
	repo.suppliers[supplier] = true
	svc := newTestService(repo)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, poRequest(supplier,
		pricing.LineItem{ItemRef: bolt.ID.String(), ItemCode: "BOLT", Quantity: 5, UnitPrice: 1},
	))
	require.NoError(t, err)
	_, err = svc.ApprovePurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	repo.failWrite = assert.AnError
	_, err = svc.ReceivePurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, assert.AnError)

	item, _ := repo.stock.Item(bolt.ID)
	assert.Equal(t, 3.0, item.Stock)
	assert.Empty(t, repo.stock.Movements())
	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusApproved, stored.Status)
}

func TestUpdatePurchaseOrderOnlyWhileDraft(t *testing.T) {
	repo := newMemoryProcRepo()
	supplier := uuid.New()
	repo.suppliers[supplier] = true
	svc := newTestService(repo)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, poRequest(supplier, pricing.LineItem{ItemCode: "A", Quantity: 1, UnitPrice: 10}))
	require.NoError(t, err)

	updated, err := svc.UpdatePurchaseOrder(ctx, po.ID, poRequest(supplier, pricing.LineItem{ItemCode: "A", Quantity: 2, UnitPrice: 10}))
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.Totals.GrandTotal)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	_, err = svc.UpdatePurchaseOrder(ctx, po.ID, poRequest(supplier, pricing.LineItem{ItemCode: "A", Quantity: 3, UnitPrice: 10}))
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPurchaseOrderHandler(t *testing.T) {
	repo := newMemoryProcRepo()
	supplier := uuid.New()
	repo.suppliers[supplier] = true
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestService(repo))
	r := chi.NewRouter()
	r.Route("/api/purchase-orders", h.MountRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rr
	}

	body := `{"supplier_id":"` + supplier.String() + `","order_date":"2025-06-01","lines":[{"item_code":"A","quantity":4,"unit_price":2.5}]}`
	rr := do(http.MethodPost, "/api/purchase-orders/", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	var po PurchaseOrder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &po))
	assert.Equal(t, "PO2025-001", po.ID)
	assert.Equal(t, 10.0, po.Totals.GrandTotal)

	rr = do(http.MethodPost, "/api/purchase-orders/PO2025-001/receive", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(http.MethodPost, "/api/purchase-orders/PO2025-001/approve", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/api/purchase-orders/?status=APPROVED&supplier_id="+supplier.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	rr = do(http.MethodGet, "/api/purchase-orders/register.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "purchase-register.xlsx")

	rr = do(http.MethodGet, "/api/purchase-orders/?supplier_id=bad", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodGet, "/api/purchase-orders/PO2025-404", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
