package payroll

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/lookup"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	counters  *sequence.MemoryStore
	employees map[string]Employee
	payslips  map[string]Payslip
}

type memoryTx struct {
	*sequence.MemoryStore
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		counters:  sequence.NewMemoryStore(),
		employees: map[string]Employee{},
		payslips:  map[string]Payslip{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters := r.counters.Snapshot()
	employees := make(map[string]Employee, len(r.employees))
	for k, v := range r.employees {
		employees[k] = v
	}
	payslips := make(map[string]Payslip, len(r.payslips))
	for k, v := range r.payslips {
		payslips[k] = v
	}
	if err := fn(ctx, &memoryTx{MemoryStore: r.counters, repo: r}); err != nil {
		r.counters.Restore(counters)
		r.employees, r.payslips = employees, payslips
		return err
	}
	return nil
}

func (r *memoryRepo) GetEmployee(ctx context.Context, id string) (Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.employees[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}

func (r *memoryRepo) ListEmployees(ctx context.Context, f EmployeeFilters) ([]Employee, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Employee
	for _, e := range r.employees {
		if f.ActiveOnly && !e.IsActive {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, len(out), nil
}

func (r *memoryRepo) GetPayslip(ctx context.Context, id string) (Payslip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payslips[id]
	if !ok {
		return Payslip{}, ErrPayslipNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListPayslips(ctx context.Context, f PayslipFilters) ([]Payslip, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payslip
	for _, p := range r.payslips {
		if f.EmployeeID != "" && p.EmployeeID != f.EmployeeID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (t *memoryTx) GetEmployeeForUpdate(ctx context.Context, id string) (Employee, error) {
	e, ok := t.repo.employees[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}

func (t *memoryTx) InsertEmployee(ctx context.Context, e Employee) error {
	if _, ok := t.repo.employees[e.ID]; ok {
		return shared.ErrDuplicate
	}
	t.repo.employees[e.ID] = e
	return nil
}

func (t *memoryTx) UpdateEmployee(ctx context.Context, e Employee) error {
	t.repo.employees[e.ID] = e
	return nil
}

func (t *memoryTx) PayslipExists(ctx context.Context, employeeID, period string) (bool, error) {
	for _, p := range t.repo.payslips {
		if p.EmployeeID == employeeID && p.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertPayslip(ctx context.Context, p Payslip) error {
	t.repo.payslips[p.ID] = p
	return nil
}

type recordingInvalidator struct {
	collections []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, collection string) {
	r.collections = append(r.collections, collection)
}

type recordingMetrics struct {
	created []string
	rules   []string
}

func (m *recordingMetrics) DocumentCreated(kind string) { m.created = append(m.created, kind) }
func (m *recordingMetrics) RuleViolated(rule string)    { m.rules = append(m.rules, rule) }

var testNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, lookups shared.CollectionInvalidator, metrics shared.DocumentMetrics) *Service {
	svc := NewService(repo, nil, lookups, metrics)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestComputePay(t *testing.T) {
	gross, net := ComputePay(3000.10,
		[]Component{{Name: "housing", Amount: 250.255}, {Name: "meal", Amount: 49.995}},
		[]Component{{Name: "tax", Amount: 300.333}},
	)
	assert.Equal(t, 3300.35, gross)
	assert.Equal(t, 3000.02, net)

	gross, net = ComputePay(0, nil, nil)
	assert.Zero(t, gross)
	assert.Zero(t, net)
}

func TestCreateEmployeeAllocatesPerJoiningYear(t *testing.T) {
	repo := newMemoryRepo()
	lookups := &recordingInvalidator{}
	svc := newTestService(repo, lookups, nil)
	ctx := context.Background()

	first, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: " Dana Reyes ", BasicPay: 2500})
	require.NoError(t, err)
	assert.Equal(t, "EMP2025-01", first.ID)
	assert.Equal(t, "Dana Reyes", first.FullName)
	assert.True(t, first.IsActive)

	second, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Sam Ito", JoinedOn: "2025-01-06"})
	require.NoError(t, err)
	assert.Equal(t, "EMP2025-02", second.ID)

	earlier, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Lee Park", JoinedOn: "2024-11-01"})
	require.NoError(t, err)
	assert.Equal(t, "EMP2024-01", earlier.ID)

	assert.Equal(t, []string{lookup.Employees, lookup.Employees, lookup.Employees}, lookups.collections)

	_, err = svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "", Email: "nope"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "full_name")
	assert.Contains(t, verr.Fields, "email")
}

func TestUpdateEmployee(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil)
	ctx := context.Background()
	e, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Dana", BasicPay: 2500})
	require.NoError(t, err)

	pay := 2750.0
	inactive := false
	updated, err := svc.UpdateEmployee(ctx, e.ID, UpdateEmployeeRequest{BasicPay: &pay, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 2750.0, updated.BasicPay)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Dana", updated.FullName)

	_, err = svc.UpdateEmployee(ctx, "EMP2025-99", UpdateEmployeeRequest{BasicPay: &pay})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreatePayslip(t *testing.T) {
	repo := newMemoryRepo()
	metrics := &recordingMetrics{}
	svc := newTestService(repo, nil, metrics)
	ctx := context.Background()
	dana, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Dana", BasicPay: 2500})
	require.NoError(t, err)
	sam, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Sam", BasicPay: 1800})
	require.NoError(t, err)

	slip, err := svc.CreatePayslip(ctx, PayslipRequest{
		EmployeeID: dana.ID,
		Period:     "2025-06",
		Allowances: []Component{{Name: "transport", Amount: 120.5}},
		Deductions: []Component{{Name: "tax", Amount: 262.05}, {Name: "pension", Amount: 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY2025-001", slip.ID)
	assert.Equal(t, 2500.0, slip.BasicPay)
	assert.Equal(t, 2620.5, slip.GrossPay)
	assert.Equal(t, 2258.45, slip.NetPay)

	_, err = svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: dana.ID, Period: "2025-06"})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	basic := 2000.0
	other, err := svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: sam.ID, Period: "2025-06", BasicPay: &basic})
	require.NoError(t, err)
	assert.Equal(t, "PAY2025-002", other.ID)
	assert.Equal(t, 2000.0, other.NetPay)

	assert.Equal(t, []string{"payslip", "payslip"}, metrics.created)
}

func TestCreatePayslipRules(t *testing.T) {
	repo := newMemoryRepo()
	metrics := &recordingMetrics{}
	svc := newTestService(repo, nil, metrics)
	ctx := context.Background()
	e, err := svc.CreateEmployee(ctx, CreateEmployeeRequest{FullName: "Dana", BasicPay: 100})
	require.NoError(t, err)

	_, err = svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: e.ID, Period: "2025-6"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "period")

	_, err = svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: e.ID, Period: "2025-06", Deductions: []Component{{Name: "loan", Amount: 150}}})
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	assert.Empty(t, repo.payslips)
	_, err = repo.counters.LoadCounter(ctx, sequence.Payslip.Name)
	require.ErrorIs(t, err, sequence.ErrCounterNotFound)

	inactive := false
	_, err = svc.UpdateEmployee(ctx, e.ID, UpdateEmployeeRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: e.ID, Period: "2025-06"})
	rule, ok := shared.AsRuleViolation(err)
	require.True(t, ok)
	assert.Equal(t, RuleEmployeeInactive, rule.Rule)

	_, err = svc.CreatePayslip(ctx, PayslipRequest{EmployeeID: "EMP2025-99", Period: "2025-06"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	assert.Equal(t, []string{RuleNegativeNetPay, RuleEmployeeInactive}, metrics.rules)
}

func TestPayrollHandler(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestService(newMemoryRepo(), nil, nil))
	r := chi.NewRouter()
	r.Route("/api/employees", h.MountEmployees)
	r.Route("/api/payslips", h.MountPayslips)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rr
	}

	rr := do(http.MethodPost, "/api/employees/", `{"full_name":"Dana","basic_pay":1000,"joined_on":"2025-02-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var e Employee
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, "EMP2025-01", e.ID)

	rr = do(http.MethodPost, "/api/payslips/", `{"employee_id":"EMP2025-01","period":"2025-07","allowances":[{"name":"bonus","amount":50}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var p Payslip
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "PAY2025-001", p.ID)
	assert.Equal(t, 1050.0, p.NetPay)

	rr = do(http.MethodPost, "/api/payslips/", `{"employee_id":"EMP2025-01","period":"2025-07"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(http.MethodGet, "/api/payslips/?employee_id=EMP2025-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list listResponse[Payslip]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	rr = do(http.MethodGet, "/api/employees/EMP2025-77", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
