package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/observability"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/jobs"
)

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	return NewRouter(RouterParams{
		Logger:        logger,
		Config:        cfg,
		Metrics:       metrics,
		TotalsHandler: pricing.NewHandler(logger),
		JobHandler:    jobs.NewHandler(nil, logger),
	}), metrics
}

func TestHealthzAndSecureHeaders(t *testing.T) {
	router, _ := newTestRouter(t, &Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestTotalsPreviewMounted(t *testing.T) {
	router, _ := newTestRouter(t, &Config{})

	body := `{"lines":[{"quantity":"2","unit_price":"50","discount_percent":"10","tax_percent":"10"}],
		"show_discount_column":true,"show_tax_column":true,"charges":{"freight":"5"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/totals/preview", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Totals pricing.DocumentTotals `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 100, resp.Totals.Subtotal, 1e-9)
	assert.InDelta(t, 104, resp.Totals.GrandTotal, 1e-9)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router, _ := newTestRouter(t, &Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestUnmountedModulesStayAbsent(t *testing.T) {
	router, _ := newTestRouter(t, &Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, &Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bizdesk_http_requests_total")
}

func TestRateLimitReturnsProblem(t *testing.T) {
	router, _ := newTestRouter(t, &Config{RateLimitPerMinute: 1})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate limit exceeded")
}
