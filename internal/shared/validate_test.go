package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleLine struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type sampleForm struct {
	Name  string       `json:"name" validate:"required,max=10"`
	Email string       `json:"email" validate:"omitempty,email"`
	Lines []sampleLine `json:"lines" validate:"required,min=1,dive"`
}

func TestValidateReportsFieldsByJSONPath(t *testing.T) {
	err := Validate(sampleForm{Email: "nope", Lines: []sampleLine{{Quantity: 1}, {Quantity: 0}}})
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "is required", vErr.Fields["name"])
	require.Equal(t, "must be a valid email address", vErr.Fields["email"])
	require.Equal(t, "must be greater than 0", vErr.Fields["lines[1].quantity"])
	require.NotContains(t, vErr.Fields, "lines[0].quantity")
}

func TestValidatePassesValidForm(t *testing.T) {
	require.NoError(t, Validate(sampleForm{Name: "ok", Lines: []sampleLine{{Quantity: 2}}}))
}

func TestRuleViolationMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("record sale: %w", NewRuleViolation("stock", "insufficient stock for %s", "A-1"))
	require.ErrorIs(t, err, ErrBusinessRule)

	v, ok := AsRuleViolation(err)
	require.True(t, ok)
	require.Equal(t, "stock", v.Rule)
	require.Equal(t, "insufficient stock for A-1", v.Message)
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 20, 45)
	require.Equal(t, 40, p.Offset())
	require.Equal(t, 3, p.TotalPages)
}
