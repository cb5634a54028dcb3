// Package export renders business documents as PDF and document registers as
// spreadsheets.
package export

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bizdesk/bizdesk/internal/pricing"
)

// Document is the printable view of an invoice or order.
type Document struct {
	CompanyName  string
	Title        string
	ID           string
	Status       string
	Date         time.Time
	DueDate      time.Time
	PartyLabel   string
	PartyName    string
	PartyAddress string
	Currency     string
	ShowDiscount bool
	ShowTax      bool
	Lines        []pricing.LineItem
	Charges      []pricing.Charge
	Totals       pricing.DocumentTotals
	Notes        string
}

// RegisterRow is one line of a document register.
type RegisterRow struct {
	ID       string
	Date     time.Time
	Party    string
	Status   string
	Currency string
	Totals   pricing.DocumentTotals
}

// Money formats v with two decimals and thousands separators.
func Money(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := len(s) > 0 && s[0] == '-'
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart, frac = s[:i], s[i:]
			break
		}
	}
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	if neg {
		return "-" + string(out) + frac
	}
	return string(out) + frac
}

func dateText(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
