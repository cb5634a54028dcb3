package invoicing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// ErrInvoiceNotFound is returned when an invoice id is unknown.
var ErrInvoiceNotFound = fmt.Errorf("invoicing: invoice %w", shared.ErrNotFound)

// DefaultTermDays sets the due date when the form leaves it blank.
const DefaultTermDays = 30

// Status enumerates invoice states.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusIssued Status = "ISSUED"
	StatusPaid   Status = "PAID"
	StatusVoid   Status = "VOID"
)

var transitions = map[Status][]Status{
	StatusDraft:  {StatusIssued, StatusVoid},
	StatusIssued: {StatusPaid, StatusVoid},
}

// CanTransition reports whether an invoice may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Invoice bills a customer, optionally against a sales order.
type Invoice struct {
	ID           string                 `json:"id"`
	CustomerID   uuid.UUID              `json:"customer_id"`
	SalesOrderID *string                `json:"sales_order_id,omitempty"`
	InvoiceDate  time.Time              `json:"invoice_date"`
	DueDate      time.Time              `json:"due_date"`
	Status       Status                 `json:"status"`
	Currency     string                 `json:"currency"`
	ShowDiscount bool                   `json:"show_discount_column"`
	ShowTax      bool                   `json:"show_tax_column"`
	Freight      float64                `json:"freight"`
	Packing      float64                `json:"packing"`
	Handling     float64                `json:"handling"`
	Lines        []pricing.LineItem     `json:"lines"`
	Totals       pricing.DocumentTotals `json:"totals"`
	Notes        string                 `json:"notes"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Charges returns the non-zero freight, packing and handling charges.
func (i Invoice) Charges() []pricing.Charge {
	return pricing.StandardCharges(i.Freight, i.Packing, i.Handling)
}

// InvoiceRequest is the create and update form payload.
type InvoiceRequest struct {
	CustomerID   string             `json:"customer_id" validate:"required,uuid"`
	SalesOrderID string             `json:"sales_order_id" validate:"max=20"`
	InvoiceDate  string             `json:"invoice_date"`
	DueDate      string             `json:"due_date"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	ShowDiscount bool               `json:"show_discount_column"`
	ShowTax      bool               `json:"show_tax_column"`
	Freight      float64            `json:"freight" validate:"gte=0"`
	Packing      float64            `json:"packing" validate:"gte=0"`
	Handling     float64            `json:"handling" validate:"gte=0"`
	Lines        []pricing.LineItem `json:"lines" validate:"required,min=1,dive"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

// ListFilters narrows invoice listings.
type ListFilters struct {
	Status     string
	CustomerID *uuid.UUID
	Overdue    bool
	AsOf       time.Time
	Page       int
	PerPage    int
}

// AgingBucket summarises open invoice totals by days past due.
type AgingBucket struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"days_1_30"`
	Bucket60  float64 `json:"days_31_60"`
	Bucket90  float64 `json:"days_61_90"`
	Bucket120 float64 `json:"days_over_90"`
}
