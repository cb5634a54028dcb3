package pricing

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/platform/httpx"
)

// Field is a number typed into a form. It accepts JSON numbers and strings and
// never fails to decode.
type Field string

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = ""
			return nil
		}
		*f = Field(s)
		return nil
	}
	*f = Field(data)
	return nil
}

// Float parses the field, returning 0 for anything that is not a finite number.
func (f Field) Float() float64 {
	return Amount(string(f))
}

type previewLine struct {
	ItemCode        string `json:"item_code"`
	Description     string `json:"description"`
	Quantity        Field  `json:"quantity"`
	UnitPrice       Field  `json:"unit_price"`
	DiscountPercent Field  `json:"discount_percent"`
	TaxPercent      Field  `json:"tax_percent"`
}

type previewRequest struct {
	Lines              []previewLine    `json:"lines"`
	ShowDiscountColumn bool             `json:"show_discount_column"`
	ShowTaxColumn      bool             `json:"show_tax_column"`
	Charges            map[string]Field `json:"charges"`
}

type previewLineResult struct {
	LineTotal float64 `json:"line_total"`
	LineBreakdown
}

type previewResponse struct {
	Lines  []previewLineResult `json:"lines"`
	Totals DocumentTotals      `json:"totals"`
}

// Handler serves live total previews for document forms.
type Handler struct {
	logger *slog.Logger
}

// NewHandler constructs the preview handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// MountRoutes registers pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	items := make([]LineItem, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = LineItem{
			ItemCode:        l.ItemCode,
			Description:     l.Description,
			Quantity:        l.Quantity.Float(),
			UnitPrice:       l.UnitPrice.Float(),
			DiscountPercent: l.DiscountPercent.Float(),
			TaxPercent:      l.TaxPercent.Float(),
		}
	}
	items = Recalculate(items)
	opts := Options{
		ShowDiscountColumn: req.ShowDiscountColumn,
		ShowTaxColumn:      req.ShowTaxColumn,
		ExtraCharges:       chargesByName(req.Charges),
	}
	breakdowns, totals := ComputeLines(items, opts)

	resp := previewResponse{Lines: make([]previewLineResult, len(items)), Totals: totals.Rounded(2)}
	for i, b := range breakdowns {
		resp.Lines[i] = previewLineResult{LineTotal: Round(items[i].LineTotal, 2), LineBreakdown: b.Rounded(2)}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// chargesByName orders charges by name so the sum is stable across requests.
func chargesByName(fields map[string]Field) []Charge {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	charges := make([]Charge, 0, len(names))
	for _, name := range names {
		charges = append(charges, Charge{Name: name, Amount: fields[name].Float()})
	}
	return charges
}
