package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastWindow WindowParams
	lastAll    TimelineFilters
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastWindow = params
	end := params.Offset + params.Limit
	if params.Offset >= len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[params.Offset:end], nil
}

func (s *stubTimelineRepo) TimelineAll(_ context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastAll = filters
	return s.rows, nil
}

func sampleRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{ID: int64(n - i), At: at.Add(-time.Duration(i) * time.Hour), Action: "sales:quotation_create", Entity: "quotation", EntityID: "QUO2025-00" + string(rune('1'+i))}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2, Entity: "  quotation "})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastWindow.Limit)
	assert.Equal(t, 0, repo.lastWindow.Offset)
	assert.Equal(t, "quotation", repo.lastWindow.Filters.Entity)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize+1, repo.lastWindow.Limit)
	assert.Equal(t, 1, result.Paging.Page)
	assert.NotNil(t, result.Rows)
}

func TestWriteCSV(t *testing.T) {
	rows := sampleRows(1)
	rows[0].Meta = map[string]any{"status": "APPROVED"}

	body, err := WriteCSV(rows)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"id", "at", "action", "entity", "entity_id", "meta"}, records[0])
	assert.Equal(t, "2025-03-10T12:00:00Z", records[1][1])
	assert.JSONEq(t, `{"status":"APPROVED"}`, records[1][5])
}

func newTestHandler(repo *stubTimelineRepo) http.Handler {
	h := NewHandler(nil, NewService(repo))
	h.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHandlerDefaultsToLastWeek(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows(2)}
	router := newTestHandler(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?entity=quotation", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), repo.lastWindow.Filters.To)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), repo.lastWindow.Filters.From)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Rows, 2)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	router := newTestHandler(&stubTimelineRepo{})

	for _, query := range []string{
		"/?from=2025-03-10&to=2025-03-01",
		"/?from=2024-01-01&to=2025-03-01",
		"/?to=10-03-2025",
		"/?page=0",
		"/?page_size=x",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, query, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, query)
	}
}

func TestHandlerExportCSV(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows(2)}
	router := newTestHandler(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv?action=sales:quotation_create", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-timeline.csv")
	assert.Equal(t, "sales:quotation_create", repo.lastAll.Action)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"))
}
