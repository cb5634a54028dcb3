package sales

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/inventory"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestService(repo, &memoryIdempotency{}, nil))
	r := chi.NewRouter()
	r.Route("/api/quotations", h.MountQuotations)
	r.Route("/api/sales-orders", h.MountOrders)
	r.Route("/api/sales", h.MountSales)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRecordSale(t *testing.T) {
	bolt := inventory.Item{ID: uuid.New(), Code: "BOLT", Name: "Bolt", Stock: 2}
	router := newTestRouter(newMemoryRepo(bolt))
	line := `{"item_ref":"` + bolt.ID.String() + `","item_code":"BOLT","quantity":%s,"unit_price":4}`

	rr := do(t, router, http.MethodPost, "/api/sales/", `{"lines":[`+strings.Replace(line, "%s", "3", 1)+`]}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "insufficient stock for BOLT: requested 3, available 2", problem["detail"])

	body := `{"lines":[` + strings.Replace(line, "%s", "2", 1) + `]}`
	rr = do(t, router, http.MethodPost, "/api/sales/", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rr.Code)
	var sale Sale
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sale))
	assert.Equal(t, "SAL2025-001", sale.ID)
	assert.Equal(t, 8.0, sale.Totals.GrandTotal)

	rr = do(t, router, http.MethodPost, "/api/sales/", body, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/sales/SAL2025-001", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/sales/register.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "sales-register.xlsx")
	assert.NotEmpty(t, rr.Body.Bytes())
}

func TestHandlerQuotationFlow(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	body := `{"customer_id":"` + uuid.NewString() + `","quote_date":"2025-03-01","valid_until":"2025-03-31",
		"show_discount_column":true,"show_tax_column":true,
		"lines":[{"item_code":"A","quantity":2,"unit_price":100,"discount_percent":10,"tax_percent":5},
		         {"item_code":"B","quantity":1,"unit_price":50,"tax_percent":5}]}`

	rr := do(t, router, http.MethodPost, "/api/quotations/", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	var q Quotation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.Equal(t, "QUO2025-001", q.ID)
	assert.Equal(t, 241.5, q.Totals.GrandTotal)

	rr = do(t, router, http.MethodPost, "/api/quotations/"+q.ID+"/accept", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	for _, action := range []string{"submit", "accept"} {
		rr = do(t, router, http.MethodPost, "/api/quotations/"+q.ID+"/"+action, "")
		require.Equal(t, http.StatusOK, rr.Code, action)
	}
	rr = do(t, router, http.MethodPost, "/api/quotations/"+q.ID+"/convert", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var order SalesOrder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &order))
	assert.Equal(t, "ORD2025-001", order.ID)

	rr = do(t, router, http.MethodPost, "/api/sales-orders/"+order.ID+"/confirm", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/quotations/?status=CONVERTED", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerValidationAndFilters(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rr := do(t, router, http.MethodPost, "/api/quotations/", `{"customer_id":"nope","lines":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Contains(t, problem.Errors, "customer_id")
	assert.Contains(t, problem.Errors, "lines")

	rr = do(t, router, http.MethodGet, "/api/sales-orders/?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/quotations/QUO2025-404", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
