package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Repository persists employees and payslips.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes the operations that run inside a transaction.
type TxRepository interface {
	sequence.CounterStore

	GetEmployeeForUpdate(ctx context.Context, id string) (Employee, error)
	InsertEmployee(ctx context.Context, e Employee) error
	UpdateEmployee(ctx context.Context, e Employee) error

	PayslipExists(ctx context.Context, employeeID, period string) (bool, error)
	InsertPayslip(ctx context.Context, p Payslip) error
}

type txRepo struct {
	*sequence.PGCounterStore
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGCounterStore: sequence.NewPGCounterStore(tx), tx: tx})
	})
}

// ============================================================================
// EMPLOYEES
// ============================================================================

const employeeColumns = `id, full_name, email, department, position, joined_on, basic_pay::float8, is_active, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.FullName, &e.Email, &e.Department, &e.Position, &e.JoinedOn, &e.BasicPay, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// GetEmployee loads an employee by id.
func (r *Repository) GetEmployee(ctx context.Context, id string) (Employee, error) {
	e, err := scanEmployee(r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

// ListEmployees returns a page of employees ordered by name.
func (r *Repository) ListEmployees(ctx context.Context, f EmployeeFilters) ([]Employee, int, error) {
	where := `WHERE ($1 = '' OR full_name ILIKE '%' || $1 || '%' OR id ILIKE '%' || $1 || '%')
		AND ($2 = '' OR department = $2)
		AND (NOT $3 OR is_active)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM employees `+where, f.Search, f.Department, f.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	rows, err := r.pool.Query(ctx, `SELECT `+employeeColumns+` FROM employees `+where+` ORDER BY full_name, id LIMIT $4 OFFSET $5`,
		f.Search, f.Department, f.ActiveOnly, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Employee, error) { return scanEmployee(row) })
	return out, total, err
}

func (t *txRepo) GetEmployeeForUpdate(ctx context.Context, id string) (Employee, error) {
	e, err := scanEmployee(t.tx.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

func (t *txRepo) InsertEmployee(ctx context.Context, e Employee) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO employees (id, full_name, email, department, position, joined_on, basic_pay, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		e.ID, e.FullName, e.Email, e.Department, e.Position, e.JoinedOn, e.BasicPay, e.IsActive, e.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: employee %s", shared.ErrDuplicate, e.ID)
	}
	return err
}

func (t *txRepo) UpdateEmployee(ctx context.Context, e Employee) error {
	tag, err := t.tx.Exec(ctx, `UPDATE employees SET full_name = $2, email = $3, department = $4, position = $5,
		basic_pay = $6, is_active = $7, updated_at = $8 WHERE id = $1`,
		e.ID, e.FullName, e.Email, e.Department, e.Position, e.BasicPay, e.IsActive, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

// ============================================================================
// PAYSLIPS
// ============================================================================

const payslipColumns = `id, employee_id, period, basic_pay::float8, allowances, deductions, gross_pay::float8, net_pay::float8, created_at`

func scanPayslip(row pgx.Row) (Payslip, error) {
	var p Payslip
	err := row.Scan(&p.ID, &p.EmployeeID, &p.Period, &p.BasicPay, &p.Allowances, &p.Deductions, &p.GrossPay, &p.NetPay, &p.CreatedAt)
	return p, err
}

// GetPayslip loads a payslip by id.
func (r *Repository) GetPayslip(ctx context.Context, id string) (Payslip, error) {
	p, err := scanPayslip(r.pool.QueryRow(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payslip{}, ErrPayslipNotFound
	}
	return p, err
}

// ListPayslips returns a page of payslips, latest period first.
func (r *Repository) ListPayslips(ctx context.Context, f PayslipFilters) ([]Payslip, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.EmployeeID != "" {
		args = append(args, f.EmployeeID)
		conds = append(conds, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if f.Period != "" {
		args = append(args, f.Period)
		conds = append(conds, fmt.Sprintf("period = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payslips`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM payslips%s ORDER BY period DESC, id DESC LIMIT $%d OFFSET $%d`,
		payslipColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payslip, error) { return scanPayslip(row) })
	return out, total, err
}

func (t *txRepo) PayslipExists(ctx context.Context, employeeID, period string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payslips WHERE employee_id = $1 AND period = $2)`, employeeID, period).Scan(&ok)
	return ok, err
}

func (t *txRepo) InsertPayslip(ctx context.Context, p Payslip) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payslips (id, employee_id, period, basic_pay, allowances, deductions, gross_pay, net_pay, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.EmployeeID, p.Period, p.BasicPay, p.Allowances, p.Deductions, p.GrossPay, p.NetPay, p.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: payslip for %s in %s", shared.ErrDuplicate, p.EmployeeID, p.Period)
	}
	return err
}
