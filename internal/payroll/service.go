package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bizdesk/bizdesk/internal/lookup"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Business rules enforced inside payslip transactions.
const (
	RuleEmployeeInactive = "employee_inactive"
	RuleNegativeNetPay   = "negative_net_pay"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEmployee(ctx context.Context, id string) (Employee, error)
	ListEmployees(ctx context.Context, f EmployeeFilters) ([]Employee, int, error)
	GetPayslip(ctx context.Context, id string) (Payslip, error)
	ListPayslips(ctx context.Context, f PayslipFilters) ([]Payslip, int, error)
}

// Service coordinates employee records and payslips.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditPort
	lookups shared.CollectionInvalidator
	metrics shared.DocumentMetrics
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, lookups shared.CollectionInvalidator, metrics shared.DocumentMetrics) *Service {
	return &Service{repo: repo, audit: audit, lookups: lookups, metrics: metrics, now: time.Now}
}

// ============================================================================
// EMPLOYEES
// ============================================================================

// CreateEmployee hires an employee under a fresh EMP id numbered within the
// joining year.
func (s *Service) CreateEmployee(ctx context.Context, req CreateEmployeeRequest) (Employee, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if err := shared.Validate(req); err != nil {
		return Employee{}, err
	}
	joined, err := shared.ParseDate("joined_on", req.JoinedOn, s.now())
	if err != nil {
		return Employee{}, err
	}
	now := s.now().UTC()
	e := Employee{
		FullName:   req.FullName,
		Email:      req.Email,
		Department: strings.TrimSpace(req.Department),
		Position:   strings.TrimSpace(req.Position),
		JoinedOn:   joined,
		BasicPay:   req.BasicPay,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := sequence.Allocate(ctx, tx, sequence.Employee, joined.Year())
		if err != nil {
			return err
		}
		e.ID = id
		return tx.InsertEmployee(ctx, e)
	})
	if err != nil {
		return Employee{}, fmt.Errorf("create employee: %w", err)
	}
	s.employeeChanged(ctx, "payroll:employee_create", e.ID)
	return e, nil
}

// UpdateEmployee applies the non-nil fields of req.
func (s *Service) UpdateEmployee(ctx context.Context, id string, req UpdateEmployeeRequest) (Employee, error) {
	if err := shared.Validate(req); err != nil {
		return Employee{}, err
	}
	var e Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetEmployeeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		e = existing
		if req.FullName != nil {
			e.FullName = strings.TrimSpace(*req.FullName)
		}
		if req.Email != nil {
			e.Email = strings.TrimSpace(*req.Email)
		}
		if req.Department != nil {
			e.Department = strings.TrimSpace(*req.Department)
		}
		if req.Position != nil {
			e.Position = strings.TrimSpace(*req.Position)
		}
		if req.BasicPay != nil {
			e.BasicPay = *req.BasicPay
		}
		if req.IsActive != nil {
			e.IsActive = *req.IsActive
		}
		e.UpdatedAt = s.now().UTC()
		return tx.UpdateEmployee(ctx, e)
	})
	if err != nil {
		return Employee{}, fmt.Errorf("update employee: %w", err)
	}
	s.employeeChanged(ctx, "payroll:employee_update", e.ID)
	return e, nil
}

// GetEmployee returns a single employee.
func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// ListEmployees returns a page of employees.
func (s *Service) ListEmployees(ctx context.Context, f EmployeeFilters) ([]Employee, int, error) {
	return s.repo.ListEmployees(ctx, f)
}

func (s *Service) employeeChanged(ctx context.Context, action, id string) {
	if s.lookups != nil {
		s.lookups.Invalidate(ctx, lookup.Employees)
	}
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{Action: action, Entity: "employee", EntityID: id})
}

// ============================================================================
// PAYSLIPS
// ============================================================================

// CreatePayslip issues the payslip of an employee for a month. An employee
// gets at most one payslip per period; the check runs before an id is
// allocated.
func (s *Service) CreatePayslip(ctx context.Context, req PayslipRequest) (Payslip, error) {
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Period = strings.TrimSpace(req.Period)
	if err := shared.Validate(req); err != nil {
		return Payslip{}, err
	}
	period, err := time.Parse(PeriodLayout, req.Period)
	if err != nil {
		return Payslip{}, shared.FieldError("period", "must match "+PeriodLayout)
	}
	p := Payslip{
		EmployeeID: req.EmployeeID,
		Period:     req.Period,
		Allowances: components(req.Allowances),
		Deductions: components(req.Deductions),
		CreatedAt:  s.now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetEmployeeForUpdate(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return shared.NewRuleViolation(RuleEmployeeInactive, "employee %s is inactive", e.ID)
		}
		exists, err := tx.PayslipExists(ctx, e.ID, p.Period)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: payslip for %s in %s already exists", shared.ErrDuplicate, e.ID, p.Period)
		}
		p.BasicPay = e.BasicPay
		if req.BasicPay != nil {
			p.BasicPay = *req.BasicPay
		}
		p.GrossPay, p.NetPay = ComputePay(p.BasicPay, p.Allowances, p.Deductions)
		if p.NetPay < 0 {
			return shared.NewRuleViolation(RuleNegativeNetPay, "deductions exceed gross pay for %s", e.ID)
		}
		id, err := sequence.Allocate(ctx, tx, sequence.Payslip, period.Year())
		if err != nil {
			return err
		}
		p.ID = id
		return tx.InsertPayslip(ctx, p)
	})
	if err != nil {
		if v, ok := shared.AsRuleViolation(err); ok && s.metrics != nil {
			s.metrics.RuleViolated(v.Rule)
		}
		return Payslip{}, fmt.Errorf("create payslip: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DocumentCreated("payslip")
	}
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		Action:   "payroll:payslip_create",
		Entity:   "payslip",
		EntityID: p.ID,
		Meta:     map[string]any{"employee_id": p.EmployeeID, "period": p.Period, "net_pay": p.NetPay},
	})
	return p, nil
}

// GetPayslip returns a single payslip.
func (s *Service) GetPayslip(ctx context.Context, id string) (Payslip, error) {
	return s.repo.GetPayslip(ctx, id)
}

// ListPayslips returns a page of payslips.
func (s *Service) ListPayslips(ctx context.Context, f PayslipFilters) ([]Payslip, int, error) {
	return s.repo.ListPayslips(ctx, f)
}

func components(in []Component) []Component {
	out := make([]Component, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		out = append(out, c)
	}
	return out
}
