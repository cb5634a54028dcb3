package export

import (
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/bizdesk/bizdesk/internal/pricing"
)

var (
	grey     = &props.Color{Red: 100, Green: 100, Blue: 100}
	headerBg = &props.Color{Red: 33, Green: 37, Blue: 41}
	altBg    = &props.Color{Red: 248, Green: 249, Blue: 250}
)

// DocumentPDF renders doc as an A4 PDF. Line amounts are recomputed from the
// stored lines so the printout always agrees with the totals block.
func DocumentPDF(doc Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).
		WithTopMargin(10).
		WithRightMargin(10).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   &props.Color{Red: 120, Green: 120, Blue: 120},
		}).
		Build()

	m := maroto.New(cfg)
	addHeader(m, doc)
	addParty(m, doc)
	addLines(m, doc)
	addTotals(m, doc)
	if doc.Notes != "" {
		m.AddRows(row.New(4))
		m.AddRows(text.NewRow(6, "Notes", props.Text{Size: 7, Style: fontstyle.Bold, Color: grey}))
		m.AddRows(text.NewRow(8, doc.Notes, props.Text{Size: 8}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s pdf: %w", doc.ID, err)
	}
	return out.GetBytes(), nil
}

// InvoicePDF renders an invoice.
func InvoicePDF(doc Document) ([]byte, error) {
	if doc.Title == "" {
		doc.Title = "INVOICE"
	}
	if doc.PartyLabel == "" {
		doc.PartyLabel = "BILL TO"
	}
	return DocumentPDF(doc)
}

func addHeader(m core.Maroto, doc Document) {
	m.AddRows(
		row.New(10).Add(
			col.New(6).Add(text.New(doc.CompanyName, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Left})),
			col.New(6).Add(text.New(doc.Title, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right, Color: headerBg})),
		),
		row.New(6).Add(
			col.New(6),
			col.New(6).Add(text.New("No: "+doc.ID, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right})),
		),
		row.New(3),
	)
}

func addParty(m core.Maroto, doc Document) {
	label := props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Left, Color: grey}
	rightLabel := props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Right, Color: grey}
	value := props.Text{Size: 8, Align: align.Left}
	rightValue := props.Text{Size: 8, Align: align.Right}

	m.AddRows(
		row.New(6).Add(
			col.New(6).Add(text.New(doc.PartyLabel, label)),
			col.New(6).Add(text.New("DETAILS", rightLabel)),
		),
		row.New(7).Add(
			col.New(6).Add(text.New(doc.PartyName, props.Text{Size: 9, Style: fontstyle.Bold})),
			col.New(3).Add(text.New("Date:", rightLabel)),
			col.New(3).Add(text.New(dateText(doc.Date), rightValue)),
		),
		row.New(7).Add(
			col.New(6).Add(text.New(doc.PartyAddress, value)),
			col.New(3).Add(text.New("Due:", rightLabel)),
			col.New(3).Add(text.New(dateText(doc.DueDate), rightValue)),
		),
	)
	if doc.Status != "" {
		m.AddRows(row.New(7).Add(
			col.New(9).Add(text.New("Status:", rightLabel)),
			col.New(3).Add(text.New(doc.Status, rightValue)),
		))
	}
	m.AddRows(row.New(3))
}

func addLines(m core.Maroto, doc Document) {
	head := props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Center, Color: &props.Color{Red: 255, Green: 255, Blue: 255}}
	headLeft := head
	headLeft.Align = align.Left
	headCell := &props.Cell{BackgroundColor: headerBg}

	m.AddRows(row.New(8).Add(
		col.New(1).Add(text.New("#", head)).WithStyle(headCell),
		col.New(4).Add(text.New("Description", headLeft)).WithStyle(headCell),
		col.New(1).Add(text.New("Qty", head)).WithStyle(headCell),
		col.New(2).Add(text.New("Unit Price", head)).WithStyle(headCell),
		col.New(1).Add(text.New("Disc %", head)).WithStyle(headCell),
		col.New(1).Add(text.New("Tax %", head)).WithStyle(headCell),
		col.New(2).Add(text.New("Amount", head)).WithStyle(headCell),
	))

	opts := pricing.Options{ShowDiscountColumn: doc.ShowDiscount, ShowTaxColumn: doc.ShowTax}
	center := props.Text{Size: 7, Align: align.Center}
	left := props.Text{Size: 7, Align: align.Left}
	right := props.Text{Size: 7, Align: align.Right}
	for i, line := range doc.Lines {
		b := pricing.ComputeLine(line, opts)
		desc := line.ItemCode
		if line.Description != "" {
			desc += " - " + line.Description
		}
		disc, tax := "-", "-"
		if doc.ShowDiscount {
			disc = strconv.FormatFloat(line.DiscountPercent, 'f', -1, 64)
		}
		if doc.ShowTax {
			tax = strconv.FormatFloat(line.TaxPercent, 'f', -1, 64)
		}
		cols := []core.Col{
			col.New(1).Add(text.New(strconv.Itoa(i+1), center)),
			col.New(4).Add(text.New(desc, left)),
			col.New(1).Add(text.New(strconv.FormatFloat(line.Quantity, 'f', -1, 64), right)),
			col.New(2).Add(text.New(Money(line.UnitPrice), right)),
			col.New(1).Add(text.New(disc, center)),
			col.New(1).Add(text.New(tax, center)),
			col.New(2).Add(text.New(Money(b.AfterDiscount+b.TaxAmount), right)),
		}
		if i%2 == 1 {
			for j, c := range cols {
				cols[j] = c.WithStyle(&props.Cell{BackgroundColor: altBg})
			}
		}
		m.AddRows(row.New(7).Add(cols...))
	}
	m.AddRows(row.New(3))
}

func addTotals(m core.Maroto, doc Document) {
	label := props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}
	value := props.Text{Size: 8, Align: align.Right}
	line := func(name string, amount float64) core.Row {
		return row.New(6).Add(
			col.New(8).Add(text.New(name, label)),
			col.New(4).Add(text.New(doc.Currency+" "+Money(amount), value)),
		)
	}

	m.AddRows(line("Subtotal", doc.Totals.Subtotal))
	if doc.ShowDiscount {
		m.AddRows(line("Discount", -doc.Totals.TotalDiscount))
	}
	if doc.ShowTax {
		m.AddRows(line("Tax", doc.Totals.TotalTax))
	}
	for _, c := range doc.Charges {
		m.AddRows(line(c.Name, c.Amount))
	}
	m.AddRows(row.New(8).Add(
		col.New(8).Add(text.New("Grand Total", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right})),
		col.New(4).Add(text.New(doc.Currency+" "+Money(doc.Totals.GrandTotal), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right})),
	))
}
