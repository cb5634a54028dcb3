package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.FieldError("name", "is required"), http.StatusUnprocessableEntity},
		{"rule", fmt.Errorf("wrap: %w", shared.NewRuleViolation("stock", "insufficient stock")), http.StatusConflict},
		{"aborted", fmt.Errorf("%w: serialization", db.ErrTxAborted), http.StatusConflict},
		{"not found", fmt.Errorf("item %w", shared.ErrNotFound), http.StatusNotFound},
		{"state", shared.InvalidTransition("invoice", "PAID", "VOID"), http.StatusConflict},
		{"bad request", ErrBadRequest, http.StatusBadRequest},
		{"foreign key", fmt.Errorf("create quotation: %w", &pgconn.PgError{Code: "23503"}), http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestRespondErrorValidationBody(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.ValidationError{Fields: map[string]string{"lines[0].quantity": "must be greater than 0"}})

	var body ValidationProblem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "must be greater than 0", body.Errors["lines[0].quantity"])
}

func TestRespondErrorRuleMessageIsDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewRuleViolation("stock", "insufficient stock for A-1: requested 5, available 2"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "insufficient stock for A-1: requested 5, available 2", body.Detail)
}
