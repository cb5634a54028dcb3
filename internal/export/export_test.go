package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bizdesk/bizdesk/internal/pricing"
)

func TestMoney(t *testing.T) {
	require.Equal(t, "0.00", Money(0))
	require.Equal(t, "241.50", Money(241.5))
	require.Equal(t, "1,234,567.89", Money(1234567.891))
	require.Equal(t, "-1,000.00", Money(-1000))
}

func TestInvoicePDF(t *testing.T) {
	lines := []pricing.LineItem{
		{ItemCode: "W-1", Description: "Widget", Quantity: 2, UnitPrice: 100, DiscountPercent: 10, TaxPercent: 5},
		{ItemCode: "W-2", Quantity: 1, UnitPrice: 50, TaxPercent: 5},
	}
	opts := pricing.Options{ShowDiscountColumn: true, ShowTaxColumn: true, ExtraCharges: []pricing.Charge{{Name: "Freight", Amount: 10}}}
	doc := Document{
		CompanyName:  "BizDesk Ltd",
		ID:           "INV2025-001",
		Date:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		PartyName:    "Acme Trading",
		PartyAddress: "1 Harbour Road",
		Currency:     "USD",
		ShowDiscount: true,
		ShowTax:      true,
		Lines:        lines,
		Charges:      opts.ExtraCharges,
		Totals:       pricing.ComputeTotals(lines, opts),
		Notes:        "Thank you",
	}

	out, err := InvoicePDF(doc)

	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRegisterXLSX(t *testing.T) {
	rows := []RegisterRow{
		{ID: "SAL2025-001", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Party: "=cmd", Status: "", Currency: "USD",
			Totals: pricing.DocumentTotals{Subtotal: 250, TotalDiscount: 20, TotalTax: 11.5, GrandTotal: 241.5}},
		{ID: "SAL2025-002", Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Party: "Walk-in", Currency: "USD",
			Totals: pricing.DocumentTotals{Subtotal: 100, GrandTotal: 100}},
	}

	out, err := RegisterXLSX("Sales register", rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Sales register"}, f.GetSheetList())
	v, err := f.GetCellValue("Sales register", "A2")
	require.NoError(t, err)
	require.Equal(t, "SAL2025-001", v)
	v, _ = f.GetCellValue("Sales register", "C2")
	require.Equal(t, "'=cmd", v)
	v, _ = f.GetCellValue("Sales register", "E4")
	require.Equal(t, "Total", v)
	v, _ = f.GetCellValue("Sales register", "J4", excelize.Options{RawCellValue: true})
	require.Equal(t, "341.5", v)
}
