package sequence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(store *MemoryStore) http.Handler {
	h := NewHandler(nil, store)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/api/sequences", h.MountRoutes)
	return r
}

func TestPreviewEndpoint(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveCounter(context.Background(), Counter{ID: SalesOrder.Name, YearlyCounts: map[int]int64{2025: 7}}))
	router := newTestRouter(store)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sequences/sales_orders/preview", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp previewResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "ORD2025-008", resp.NextID)
	require.Equal(t, 2025, resp.Year)
}

func TestPreviewEndpointExplicitYear(t *testing.T) {
	router := newTestRouter(NewMemoryStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sequences/invoices/preview?year=2030", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "INV2030-001")
}

func TestPreviewEndpointErrors(t *testing.T) {
	router := newTestRouter(NewMemoryStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sequences/nope/preview", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sequences/invoices/preview?year=abc", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
