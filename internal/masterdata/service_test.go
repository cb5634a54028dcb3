package masterdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/shared"
)

type memoryRepo struct {
	parties map[uuid.UUID]Party
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parties: map[uuid.UUID]Party{}}
}

func (r *memoryRepo) Create(ctx context.Context, p Party) error {
	for _, existing := range r.parties {
		if existing.Kind == p.Kind && existing.Code == p.Code {
			return shared.ErrDuplicate
		}
	}
	r.parties[p.ID] = p
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, p Party) error {
	if _, ok := r.parties[p.ID]; !ok {
		return ErrPartyNotFound
	}
	r.parties[p.ID] = p
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, kind Kind, id uuid.UUID) (Party, error) {
	p, ok := r.parties[id]
	if !ok || p.Kind != kind {
		return Party{}, ErrPartyNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(ctx context.Context, kind Kind, filters ListFilters) ([]Party, int, error) {
	var out []Party
	for _, p := range r.parties {
		if p.Kind != kind || (filters.ActiveOnly && !p.IsActive) {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

type recordingInvalidator struct {
	collections []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, collection string) {
	r.collections = append(r.collections, collection)
}

func TestCreateCustomerInvalidatesLookup(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewService(newMemoryRepo(), nil, inv)

	party, err := svc.Create(context.Background(), KindCustomer, CreatePartyRequest{Code: " C-001 ", Name: "Acme Trading", Email: "ops@acme.test"})

	require.NoError(t, err)
	require.Equal(t, "C-001", party.Code)
	require.True(t, party.IsActive)
	require.NotEqual(t, uuid.Nil, party.ID)
	require.Equal(t, []string{"customers"}, inv.collections)
}

func TestCreateRejectsInvalidForm(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Create(context.Background(), KindSupplier, CreatePartyRequest{Code: "", Name: "x", Email: "bad"})

	var vErr *shared.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Contains(t, vErr.Fields, "code")
	require.Contains(t, vErr.Fields, "email")
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, KindSupplier, CreatePartyRequest{Code: "S-1", Name: "Steel Co"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, KindSupplier, CreatePartyRequest{Code: "S-1", Name: "Other"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeactivateAndList(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewService(newMemoryRepo(), nil, inv)
	ctx := context.Background()

	a, err := svc.Create(ctx, KindCustomer, CreatePartyRequest{Code: "C-1", Name: "Beta"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, KindCustomer, CreatePartyRequest{Code: "C-2", Name: "Alpha"})
	require.NoError(t, err)

	updated, err := svc.Deactivate(ctx, KindCustomer, a.ID)
	require.NoError(t, err)
	require.False(t, updated.IsActive)

	active, total, err := svc.List(ctx, KindCustomer, ListFilters{ActiveOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Alpha", active[0].Name)
	require.Len(t, inv.collections, 3)
}

func TestGetWrongKindIsNotFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, KindCustomer, CreatePartyRequest{Code: "C-1", Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, KindSupplier, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerCreateAndShow(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api/customers", h.Routes(KindCustomer))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/customers/", strings.NewReader(`{"code":"C-9","name":"Gamma"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/customers/", strings.NewReader(`{"code":"","name":""}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/customers/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/customers/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
