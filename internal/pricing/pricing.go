// Package pricing computes line and document totals for quotations, orders,
// invoices, purchase orders and sales records.
//
// Every function here is pure and total: non-finite inputs count as zero and
// nothing returns an error, so forms can recompute on every keystroke.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem is one row of a business document. LineTotal is derived
// (Quantity × UnitPrice, before discount) and is overwritten by Recalculate.
type LineItem struct {
	ItemRef         string  `json:"item_ref,omitempty" validate:"omitempty,uuid"`
	ItemCode        string  `json:"item_code" validate:"required,max=50"`
	Description     string  `json:"description" validate:"max=500"`
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
	LineTotal       float64 `json:"line_total"`
}

// Charge is a flat amount added after tax, e.g. freight.
type Charge struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Options controls which columns participate in the computation.
type Options struct {
	ShowDiscountColumn bool
	ShowTaxColumn      bool
	ExtraCharges       []Charge
}

// LineBreakdown holds the intermediate amounts of a single line.
type LineBreakdown struct {
	LineSubtotal   float64 `json:"line_subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	AfterDiscount  float64 `json:"after_discount"`
	TaxAmount      float64 `json:"tax_amount"`
}

// DocumentTotals aggregates a document.
// GrandTotal = Subtotal - TotalDiscount + TotalTax + AdditionalCharges.
type DocumentTotals struct {
	Subtotal          float64 `json:"subtotal"`
	TotalDiscount     float64 `json:"total_discount"`
	TotalTax          float64 `json:"total_tax"`
	AdditionalCharges float64 `json:"additional_charges"`
	GrandTotal        float64 `json:"grand_total"`
}

// ComputeLine computes the breakdown of a single line.
func ComputeLine(item LineItem, opts Options) LineBreakdown {
	subtotal := finite(item.Quantity) * finite(item.UnitPrice)
	var discount float64
	if opts.ShowDiscountColumn {
		discount = subtotal * finite(item.DiscountPercent) / 100
	}
	after := subtotal - discount
	var tax float64
	if opts.ShowTaxColumn {
		tax = after * finite(item.TaxPercent) / 100
	}
	return LineBreakdown{
		LineSubtotal:   subtotal,
		DiscountAmount: discount,
		AfterDiscount:  after,
		TaxAmount:      tax,
	}
}

// ComputeTotals returns the document totals for items.
func ComputeTotals(items []LineItem, opts Options) DocumentTotals {
	_, totals := ComputeLines(items, opts)
	return totals
}

// ComputeLines returns the per-line breakdowns alongside the totals. items is
// not modified.
func ComputeLines(items []LineItem, opts Options) ([]LineBreakdown, DocumentTotals) {
	lines := make([]LineBreakdown, len(items))
	var totals DocumentTotals
	for i, item := range items {
		b := ComputeLine(item, opts)
		lines[i] = b
		totals.Subtotal += b.LineSubtotal
		totals.TotalDiscount += b.DiscountAmount
		totals.TotalTax += b.TaxAmount
	}
	totals.AdditionalCharges = SumCharges(opts.ExtraCharges)
	totals.GrandTotal = grandTotal(totals)
	return lines, totals
}

// Recalculate returns a copy of items with LineTotal refreshed.
func Recalculate(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.LineTotal = finite(item.Quantity) * finite(item.UnitPrice)
		out[i] = item
	}
	return out
}

// SumCharges adds up the finite charge amounts.
func SumCharges(charges []Charge) float64 {
	var sum float64
	for _, c := range charges {
		sum += finite(c.Amount)
	}
	return sum
}

// StandardCharges builds the freight, packing and handling charges used by
// invoices and purchase orders. Zero amounts are omitted.
func StandardCharges(freight, packing, handling float64) []Charge {
	var out []Charge
	for _, c := range []Charge{
		{Name: "freight", Amount: freight},
		{Name: "packing", Amount: packing},
		{Name: "handling", Amount: handling},
	} {
		if finite(c.Amount) != 0 {
			out = append(out, c)
		}
	}
	return out
}

// Amount parses a user-typed number. Blank, unparsable or non-finite input is 0.
func Amount(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

// Rounded rounds every component half away from zero and recomputes
// GrandTotal from the rounded parts so the invariant still holds exactly.
func (t DocumentTotals) Rounded(places int32) DocumentTotals {
	out := DocumentTotals{
		Subtotal:          round(t.Subtotal, places),
		TotalDiscount:     round(t.TotalDiscount, places),
		TotalTax:          round(t.TotalTax, places),
		AdditionalCharges: round(t.AdditionalCharges, places),
	}
	grand := decimal.NewFromFloat(out.Subtotal).
		Sub(decimal.NewFromFloat(out.TotalDiscount)).
		Add(decimal.NewFromFloat(out.TotalTax)).
		Add(decimal.NewFromFloat(out.AdditionalCharges))
	out.GrandTotal = grand.Round(places).InexactFloat64()
	return out
}

// Rounded rounds every component of the line half away from zero.
func (b LineBreakdown) Rounded(places int32) LineBreakdown {
	return LineBreakdown{
		LineSubtotal:   round(b.LineSubtotal, places),
		DiscountAmount: round(b.DiscountAmount, places),
		AfterDiscount:  round(b.AfterDiscount, places),
		TaxAmount:      round(b.TaxAmount, places),
	}
}

// Round rounds a single amount half away from zero.
func Round(v float64, places int32) float64 {
	return round(v, places)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(finite(v)).Round(places).InexactFloat64()
}

func grandTotal(t DocumentTotals) float64 {
	return t.Subtotal - t.TotalDiscount + t.TotalTax + t.AdditionalCharges
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
