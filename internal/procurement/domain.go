package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// ErrPONotFound is returned when a purchase order id is unknown.
var ErrPONotFound = fmt.Errorf("procurement: purchase order %w", shared.ErrNotFound)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproved  POStatus = "APPROVED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:    {POStatusApproved, POStatusCancelled},
	POStatusApproved: {POStatusReceived, POStatusCancelled},
}

// CanTransition reports whether a purchase order may move from s to next.
func (s POStatus) CanTransition(next POStatus) bool {
	for _, allowed := range poTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PurchaseOrder orders goods from a supplier.
type PurchaseOrder struct {
	ID           string                 `json:"id"`
	SupplierID   uuid.UUID              `json:"supplier_id"`
	OrderDate    time.Time              `json:"order_date"`
	ExpectedDate *time.Time             `json:"expected_date,omitempty"`
	Status       POStatus               `json:"status"`
	Currency     string                 `json:"currency"`
	ShowDiscount bool                   `json:"show_discount_column"`
	ShowTax      bool                   `json:"show_tax_column"`
	Freight      float64                `json:"freight"`
	Packing      float64                `json:"packing"`
	Handling     float64                `json:"handling"`
	Lines        []pricing.LineItem     `json:"lines"`
	Totals       pricing.DocumentTotals `json:"totals"`
	Notes        string                 `json:"notes"`
	ReceivedAt   *time.Time             `json:"received_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Charges returns the non-zero freight, packing and handling charges.
func (po PurchaseOrder) Charges() []pricing.Charge {
	return pricing.StandardCharges(po.Freight, po.Packing, po.Handling)
}

// PurchaseOrderRequest is the create and update form payload.
type PurchaseOrderRequest struct {
	SupplierID   string             `json:"supplier_id" validate:"required,uuid"`
	OrderDate    string             `json:"order_date"`
	ExpectedDate string             `json:"expected_date"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	ShowDiscount bool               `json:"show_discount_column"`
	ShowTax      bool               `json:"show_tax_column"`
	Freight      float64            `json:"freight" validate:"gte=0"`
	Packing      float64            `json:"packing" validate:"gte=0"`
	Handling     float64            `json:"handling" validate:"gte=0"`
	Lines        []pricing.LineItem `json:"lines" validate:"required,min=1,dive"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

// ListFilters narrows purchase order listings.
type ListFilters struct {
	Status     string
	SupplierID *uuid.UUID
	Page       int
	PerPage    int
}
