package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bizdesk/bizdesk/internal/shared"
)

var (
	// ErrEmployeeNotFound is returned when an employee id is unknown.
	ErrEmployeeNotFound = fmt.Errorf("payroll: employee %w", shared.ErrNotFound)
	// ErrPayslipNotFound is returned when a payslip id is unknown.
	ErrPayslipNotFound = fmt.Errorf("payroll: payslip %w", shared.ErrNotFound)
)

// PeriodLayout is the wire format of a pay period.
const PeriodLayout = "2006-01"

// Employee is a person on the payroll.
type Employee struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Position   string    `json:"position"`
	JoinedOn   time.Time `json:"joined_on"`
	BasicPay   float64   `json:"basic_pay"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateEmployeeRequest is the hire form payload.
type CreateEmployeeRequest struct {
	FullName   string  `json:"full_name" validate:"required,max=200"`
	Email      string  `json:"email" validate:"omitempty,email,max=200"`
	Department string  `json:"department" validate:"max=100"`
	Position   string  `json:"position" validate:"max=100"`
	JoinedOn   string  `json:"joined_on"`
	BasicPay   float64 `json:"basic_pay" validate:"gte=0"`
}

// UpdateEmployeeRequest carries the fields to change.
type UpdateEmployeeRequest struct {
	FullName   *string  `json:"full_name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string  `json:"email,omitempty" validate:"omitempty,email,max=200"`
	Department *string  `json:"department,omitempty" validate:"omitempty,max=100"`
	Position   *string  `json:"position,omitempty" validate:"omitempty,max=100"`
	BasicPay   *float64 `json:"basic_pay,omitempty" validate:"omitempty,gte=0"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

// EmployeeFilters narrows employee listings.
type EmployeeFilters struct {
	Search     string
	Department string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// Component is a named allowance or deduction.
type Component struct {
	Name   string  `json:"name" validate:"required,max=100"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// Payslip is one employee's pay for a month.
type Payslip struct {
	ID         string      `json:"id"`
	EmployeeID string      `json:"employee_id"`
	Period     string      `json:"period"`
	BasicPay   float64     `json:"basic_pay"`
	Allowances []Component `json:"allowances"`
	Deductions []Component `json:"deductions"`
	GrossPay   float64     `json:"gross_pay"`
	NetPay     float64     `json:"net_pay"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PayslipRequest is the payslip form payload. BasicPay defaults to the
// employee's current basic pay.
type PayslipRequest struct {
	EmployeeID string      `json:"employee_id" validate:"required,max=20"`
	Period     string      `json:"period" validate:"required,datetime=2006-01"`
	BasicPay   *float64    `json:"basic_pay,omitempty" validate:"omitempty,gte=0"`
	Allowances []Component `json:"allowances" validate:"dive"`
	Deductions []Component `json:"deductions" validate:"dive"`
}

// PayslipFilters narrows payslip listings.
type PayslipFilters struct {
	EmployeeID string
	Period     string
	Page       int
	PerPage    int
}

// ComputePay returns gross = basic + allowances and net = gross - deductions,
// both rounded half away from zero to cents.
func ComputePay(basic float64, allowances, deductions []Component) (gross, net float64) {
	g := decimal.NewFromFloat(basic)
	for _, a := range allowances {
		g = g.Add(decimal.NewFromFloat(a.Amount))
	}
	n := g
	for _, d := range deductions {
		n = n.Sub(decimal.NewFromFloat(d.Amount))
	}
	return g.Round(2).InexactFloat64(), n.Round(2).InexactFloat64()
}
