// Package sequence allocates human readable document ids such as ORD2025-008
// from yearly counters.
//
// Allocate performs a read-increment-write on the counter through the
// CounterStore it is given. Callers pass a store bound to the same database
// transaction that writes the business document, so the id is consumed if and
// only if the document commits. Nothing here retries; conflicting allocations
// fail at commit and the platform transaction runner re-runs the whole body.
package sequence

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCounterNotFound is returned by stores when no counter row exists yet.
	ErrCounterNotFound = errors.New("sequence: counter not found")
	// ErrUnknownSequence indicates a name outside the built-in specs.
	ErrUnknownSequence = errors.New("sequence: unknown sequence")
	// ErrInvalidSpec rejects specs that cannot produce an id.
	ErrInvalidSpec = errors.New("sequence: invalid spec")
)

// Counter is the persisted per-year count of a sequence.
type Counter struct {
	ID           string
	YearlyCounts map[int]int64
}

// Current returns the last number allocated for year.
func (c Counter) Current(year int) int64 {
	return c.YearlyCounts[year]
}

// Spec describes how ids of one document type look.
type Spec struct {
	Name   string
	Prefix string
	Width  int
}

// Built-in document sequences.
var (
	Quotation     = Spec{Name: "quotations", Prefix: "QUO", Width: 3}
	SalesOrder    = Spec{Name: "sales_orders", Prefix: "ORD", Width: 3}
	Invoice       = Spec{Name: "invoices", Prefix: "INV", Width: 3}
	PurchaseOrder = Spec{Name: "purchase_orders", Prefix: "PO", Width: 3}
	Sale          = Spec{Name: "sales", Prefix: "SAL", Width: 3}
	Payslip       = Spec{Name: "payslips", Prefix: "PAY", Width: 3}
	Employee      = Spec{Name: "employees", Prefix: "EMP", Width: 2}
)

var builtin = []Spec{Quotation, SalesOrder, Invoice, PurchaseOrder, Sale, Payslip, Employee}

// Specs lists the built-in sequences.
func Specs() []Spec {
	out := make([]Spec, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup finds a built-in spec by name.
func Lookup(name string) (Spec, error) {
	for _, s := range builtin {
		if s.Name == name {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("%w: %s", ErrUnknownSequence, name)
}

// CounterReader loads counters.
type CounterReader interface {
	LoadCounter(ctx context.Context, id string) (Counter, error)
}

// CounterStore loads and saves counters. Implementations used with Allocate
// must be bound to the caller's transaction.
type CounterStore interface {
	CounterReader
	SaveCounter(ctx context.Context, counter Counter) error
}

// Format renders prefix + year + "-" + n zero padded to width. Numbers wider
// than width are kept whole.
func Format(prefix string, year int, n int64, width int) string {
	return fmt.Sprintf("%s%d-%0*d", prefix, year, width, n)
}

// Allocate consumes the next number of spec for year and returns the
// formatted id. Run every validating read of the surrounding transaction
// before calling it.
func Allocate(ctx context.Context, store CounterStore, spec Spec, year int) (string, error) {
	if err := spec.validate(year); err != nil {
		return "", err
	}
	counter, err := load(ctx, store, spec)
	if err != nil {
		return "", err
	}
	next := counter.Current(year) + 1

	counts := make(map[int]int64, len(counter.YearlyCounts)+1)
	for y, n := range counter.YearlyCounts {
		counts[y] = n
	}
	counts[year] = next
	if err := store.SaveCounter(ctx, Counter{ID: spec.Name, YearlyCounts: counts}); err != nil {
		return "", fmt.Errorf("sequence: save %s: %w", spec.Name, err)
	}
	return Format(spec.Prefix, year, next, spec.Width), nil
}

// Preview returns the id the next allocation would produce without
// consuming it. Concurrent writers may take it first.
func Preview(ctx context.Context, reader CounterReader, spec Spec, year int) (string, error) {
	if err := spec.validate(year); err != nil {
		return "", err
	}
	counter, err := load(ctx, reader, spec)
	if err != nil {
		return "", err
	}
	return Format(spec.Prefix, year, counter.Current(year)+1, spec.Width), nil
}

func load(ctx context.Context, reader CounterReader, spec Spec) (Counter, error) {
	counter, err := reader.LoadCounter(ctx, spec.Name)
	if errors.Is(err, ErrCounterNotFound) {
		return Counter{ID: spec.Name}, nil
	}
	if err != nil {
		return Counter{}, fmt.Errorf("sequence: load %s: %w", spec.Name, err)
	}
	return counter, nil
}

func (s Spec) validate(year int) error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidSpec)
	case s.Prefix == "":
		return fmt.Errorf("%w: prefix required", ErrInvalidSpec)
	case s.Width < 1:
		return fmt.Errorf("%w: width must be positive", ErrInvalidSpec)
	case year < 1:
		return fmt.Errorf("%w: year must be positive", ErrInvalidSpec)
	}
	return nil
}
