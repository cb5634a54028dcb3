package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/shared"
)

var (
	// ErrQuotationNotFound is returned when a quotation id is unknown.
	ErrQuotationNotFound = fmt.Errorf("sales: quotation %w", shared.ErrNotFound)
	// ErrOrderNotFound is returned when a sales order id is unknown.
	ErrOrderNotFound = fmt.Errorf("sales: order %w", shared.ErrNotFound)
	// ErrSaleNotFound is returned when a sales record id is unknown.
	ErrSaleNotFound = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
)

// IdempotencyModule scopes Idempotency-Key values for sales records.
const IdempotencyModule = "sales"

// DefaultCurrency applies when a form leaves currency blank.
const DefaultCurrency = "USD"

// ============================================================================
// QUOTATION
// ============================================================================

type QuotationStatus string

const (
	QuotationStatusDraft     QuotationStatus = "DRAFT"
	QuotationStatusSubmitted QuotationStatus = "SUBMITTED"
	QuotationStatusAccepted  QuotationStatus = "ACCEPTED"
	QuotationStatusRejected  QuotationStatus = "REJECTED"
	QuotationStatusExpired   QuotationStatus = "EXPIRED"
	QuotationStatusConverted QuotationStatus = "CONVERTED"
)

var quotationTransitions = map[QuotationStatus][]QuotationStatus{
	QuotationStatusDraft:     {QuotationStatusSubmitted, QuotationStatusExpired},
	QuotationStatusSubmitted: {QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired},
	QuotationStatusAccepted:  {QuotationStatusConverted},
}

// CanTransition reports whether a quotation may move from s to next.
func (s QuotationStatus) CanTransition(next QuotationStatus) bool {
	for _, allowed := range quotationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Quotation struct {
	ID           string                 `json:"id"`
	CustomerID   uuid.UUID              `json:"customer_id"`
	QuoteDate    time.Time              `json:"quote_date"`
	ValidUntil   time.Time              `json:"valid_until"`
	Status       QuotationStatus        `json:"status"`
	Currency     string                 `json:"currency"`
	ShowDiscount bool                   `json:"show_discount_column"`
	ShowTax      bool                   `json:"show_tax_column"`
	Lines        []pricing.LineItem     `json:"lines"`
	Totals       pricing.DocumentTotals `json:"totals"`
	Notes        string                 `json:"notes"`
	SalesOrderID *string                `json:"sales_order_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type QuotationRequest struct {
	CustomerID   string             `json:"customer_id" validate:"required,uuid"`
	QuoteDate    string             `json:"quote_date"`
	ValidUntil   string             `json:"valid_until" validate:"required"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	ShowDiscount bool               `json:"show_discount_column"`
	ShowTax      bool               `json:"show_tax_column"`
	Lines        []pricing.LineItem `json:"lines" validate:"required,min=1,dive"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

// ConvertRequest carries the order date of a quotation conversion.
type ConvertRequest struct {
	OrderDate string `json:"order_date"`
}

// ============================================================================
// SALES ORDER
// ============================================================================

type SalesOrderStatus string

const (
	SalesOrderStatusDraft     SalesOrderStatus = "DRAFT"
	SalesOrderStatusConfirmed SalesOrderStatus = "CONFIRMED"
	SalesOrderStatusCancelled SalesOrderStatus = "CANCELLED"
)

var orderTransitions = map[SalesOrderStatus][]SalesOrderStatus{
	SalesOrderStatusDraft:     {SalesOrderStatusConfirmed, SalesOrderStatusCancelled},
	SalesOrderStatusConfirmed: {SalesOrderStatusCancelled},
}

// CanTransition reports whether an order may move from s to next.
func (s SalesOrderStatus) CanTransition(next SalesOrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type SalesOrder struct {
	ID           string                 `json:"id"`
	CustomerID   uuid.UUID              `json:"customer_id"`
	QuotationID  *string                `json:"quotation_id,omitempty"`
	OrderDate    time.Time              `json:"order_date"`
	Status       SalesOrderStatus       `json:"status"`
	Currency     string                 `json:"currency"`
	ShowDiscount bool                   `json:"show_discount_column"`
	ShowTax      bool                   `json:"show_tax_column"`
	Lines        []pricing.LineItem     `json:"lines"`
	Totals       pricing.DocumentTotals `json:"totals"`
	Notes        string                 `json:"notes"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type SalesOrderRequest struct {
	CustomerID   string             `json:"customer_id" validate:"required,uuid"`
	OrderDate    string             `json:"order_date"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	ShowDiscount bool               `json:"show_discount_column"`
	ShowTax      bool               `json:"show_tax_column"`
	Lines        []pricing.LineItem `json:"lines" validate:"required,min=1,dive"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

// ============================================================================
// SALES RECORD
// ============================================================================

// Sale is a point-of-sale record. Recording one takes its quantities out of
// stock.
type Sale struct {
	ID           string                 `json:"id"`
	CustomerID   *uuid.UUID             `json:"customer_id,omitempty"`
	SaleDate     time.Time              `json:"sale_date"`
	Currency     string                 `json:"currency"`
	ShowDiscount bool                   `json:"show_discount_column"`
	ShowTax      bool                   `json:"show_tax_column"`
	Lines        []pricing.LineItem     `json:"lines"`
	Totals       pricing.DocumentTotals `json:"totals"`
	Notes        string                 `json:"notes"`
	CreatedAt    time.Time              `json:"created_at"`
}

type SaleRequest struct {
	CustomerID   string             `json:"customer_id" validate:"omitempty,uuid"`
	SaleDate     string             `json:"sale_date"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	ShowDiscount bool               `json:"show_discount_column"`
	ShowTax      bool               `json:"show_tax_column"`
	Lines        []pricing.LineItem `json:"lines" validate:"required,min=1,dive"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

// ListFilters narrows document listings.
type ListFilters struct {
	Status     string
	CustomerID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}
