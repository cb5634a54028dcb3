package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/shared"
)

var (
	// ErrItemNotFound is returned when an item does not exist.
	ErrItemNotFound = fmt.Errorf("inventory: item %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a zero stock adjustment.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non-zero")
)

// RuleInsufficientStock names the stock availability rule.
const RuleInsufficientStock = "insufficient_stock"

// Item is a stocked product.
type Item struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	UnitPrice    float64   `json:"unit_price"`
	Stock        float64   `json:"stock"`
	ReorderLevel float64   `json:"reorder_level"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder level.
func (i Item) LowStock() bool {
	return i.Stock <= i.ReorderLevel
}

// CreateItemRequest is the create form payload.
type CreateItemRequest struct {
	Code         string  `json:"code" validate:"required,max=50"`
	Name         string  `json:"name" validate:"required,max=200"`
	Unit         string  `json:"unit" validate:"max=20"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	Stock        float64 `json:"stock" validate:"gte=0"`
	ReorderLevel float64 `json:"reorder_level" validate:"gte=0"`
}

// UpdateItemRequest carries the fields to change. Stock changes go through
// AdjustStock so they leave a movement behind.
type UpdateItemRequest struct {
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Unit         *string  `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPrice    *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel *float64 `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
	IsActive     *bool    `json:"is_active,omitempty"`
}

// AdjustStockRequest is a signed manual correction.
type AdjustStockRequest struct {
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason" validate:"required,max=200"`
}

// Movement records a stock change caused by a document.
type Movement struct {
	ItemID uuid.UUID
	Delta  float64
	Reason string
	RefID  string
}

// StockRequest is the quantity a document line wants to take out.
type StockRequest struct {
	ItemID   uuid.UUID
	Quantity float64
}

// ListFilters represents list page filters.
type ListFilters struct {
	Search       string
	ActiveOnly   bool
	LowStockOnly bool
	Page         int
	PerPage      int
}
