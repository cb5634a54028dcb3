package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/shared"
)

var _ shared.DocumentMetrics = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("quotations:expire").End(nil)
	_ = metrics.Jobs().Track("inventory:low-stock").End(errors.New("boom"))
	metrics.Jobs().AddAffected("quotations:expire", 3)

	body := scrape(t, metrics)
	assert.Contains(t, body, `bizdesk_jobs_total{job="quotations:expire",status="success"} 1`)
	assert.Contains(t, body, `bizdesk_jobs_failures_total{job="inventory:low-stock"} 1`)
	assert.Contains(t, body, `bizdesk_job_records_total{job="quotations:expire"} 3`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `bizdesk_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `bizdesk_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDocumentAndRuleCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.DocumentCreated("sale")
	metrics.DocumentCreated("sale")
	metrics.RuleViolated("insufficient_stock")

	body := scrape(t, metrics)
	assert.Contains(t, body, `bizdesk_documents_created_total{kind="sale"} 2`)
	assert.Contains(t, body, `bizdesk_rule_violations_total{rule="insufficient_stock"} 1`)

	var nilMetrics *Metrics
	nilMetrics.DocumentCreated("sale")
	nilMetrics.RuleViolated("x")
	assert.Nil(t, nilMetrics.Jobs())
}
