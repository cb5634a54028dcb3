package masterdata

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/shared"
)

// Kind distinguishes the two party tables.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindSupplier Kind = "supplier"
)

func (k Kind) table() string {
	if k == KindSupplier {
		return "suppliers"
	}
	return "customers"
}

// Collection is the lookup collection fed by this kind.
func (k Kind) Collection() string {
	return k.table()
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCustomer || k == KindSupplier
}

// ErrPartyNotFound is returned when a customer or supplier does not exist.
var ErrPartyNotFound = fmt.Errorf("masterdata: party %w", shared.ErrNotFound)

// Party is a customer or supplier.
type Party struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	TaxID     string    `json:"tax_id"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreatePartyRequest is the create form payload.
type CreatePartyRequest struct {
	Code    string `json:"code" validate:"required,max=50"`
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	TaxID   string `json:"tax_id" validate:"max=50"`
	Address string `json:"address" validate:"max=500"`
}

// UpdatePartyRequest carries the fields to change. Nil means unchanged.
type UpdatePartyRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	TaxID    *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=500"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListFilters represents list page filters.
type ListFilters struct {
	Search     string
	ActiveOnly bool
	Page       int
	PerPage    int
}
