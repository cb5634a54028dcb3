package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/export"
	"github.com/bizdesk/bizdesk/internal/masterdata"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// RepositoryPort defines data access methods for invoicing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, f ListFilters) ([]Invoice, int, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
}

// PartyDirectory resolves customer names for printouts.
type PartyDirectory interface {
	Get(ctx context.Context, kind masterdata.Kind, id uuid.UUID) (masterdata.Party, error)
}

// Service handles invoice business logic.
type Service struct {
	repo    RepositoryPort
	parties PartyDirectory
	audit   shared.AuditPort
	metrics shared.DocumentMetrics
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, parties PartyDirectory, audit shared.AuditPort, metrics shared.DocumentMetrics) *Service {
	return &Service{repo: repo, parties: parties, audit: audit, metrics: metrics, now: time.Now}
}

// CreateInvoice stores a DRAFT invoice under a fresh INV id. A referenced
// sales order must exist.
func (s *Service) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	inv, err := s.fromRequest(req)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now().UTC()
	inv.Status = StatusDraft
	inv.CreatedAt, inv.UpdatedAt = now, now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkCustomer(ctx, tx, inv.CustomerID); err != nil {
			return err
		}
		if err := checkOrder(ctx, tx, inv.SalesOrderID); err != nil {
			return err
		}
		id, err := sequence.Allocate(ctx, tx, sequence.Invoice, inv.InvoiceDate.Year())
		if err != nil {
			return err
		}
		inv.ID = id
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DocumentCreated("invoice")
	}
	s.recordAudit(ctx, "invoicing:create", inv.ID, map[string]any{"grand_total": inv.Totals.GrandTotal})
	return inv, nil
}

// UpdateInvoice replaces the content of a DRAFT invoice.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req InvoiceRequest) (Invoice, error) {
	next, err := s.fromRequest(req)
	if err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusDraft {
			return fmt.Errorf("%w: only DRAFT invoices can be updated", shared.ErrInvalidState)
		}
		if err := checkCustomer(ctx, tx, next.CustomerID); err != nil {
			return err
		}
		if err := checkOrder(ctx, tx, next.SalesOrderID); err != nil {
			return err
		}
		next.ID = existing.ID
		next.Status = existing.Status
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = s.now().UTC()
		inv = next
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	s.recordAudit(ctx, "invoicing:update", inv.ID, nil)
	return inv, nil
}

// IssueInvoice finalises a DRAFT invoice.
func (s *Service) IssueInvoice(ctx context.Context, id string) (Invoice, error) {
	return s.transition(ctx, id, StatusIssued)
}

// MarkPaid settles an ISSUED invoice.
func (s *Service) MarkPaid(ctx context.Context, id string) (Invoice, error) {
	return s.transition(ctx, id, StatusPaid)
}

// VoidInvoice cancels a DRAFT or ISSUED invoice.
func (s *Service) VoidInvoice(ctx context.Context, id string) (Invoice, error) {
	return s.transition(ctx, id, StatusVoid)
}

func (s *Service) transition(ctx context.Context, id string, next Status) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !existing.Status.CanTransition(next) {
			return shared.InvalidTransition("invoice", string(existing.Status), string(next))
		}
		inv = existing
		inv.Status = next
		inv.UpdatedAt = s.now().UTC()
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("%s invoice: %w", strings.ToLower(string(next)), err)
	}
	s.recordAudit(ctx, "invoicing:"+strings.ToLower(string(next)), inv.ID, nil)
	return inv, nil
}

// GetInvoice returns a single invoice.
func (s *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns a page of invoices. Overdue listings are evaluated
// against today when AsOf is unset.
func (s *Service) ListInvoices(ctx context.Context, f ListFilters) ([]Invoice, int, error) {
	if f.Overdue && f.AsOf.IsZero() {
		f.AsOf = s.today()
	}
	return s.repo.ListInvoices(ctx, f)
}

// CalculateAging groups outstanding invoices by days past due.
func (s *Service) CalculateAging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.today()
	}
	var bucket AgingBucket
	for _, inv := range invoices {
		if inv.Status != StatusIssued {
			continue
		}
		total := inv.Totals.GrandTotal
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current += total
		case days <= 30:
			bucket.Bucket30 += total
		case days <= 60:
			bucket.Bucket60 += total
		case days <= 90:
			bucket.Bucket90 += total
		default:
			bucket.Bucket120 += total
		}
	}
	bucket.Current = pricing.Round(bucket.Current, 2)
	bucket.Bucket30 = pricing.Round(bucket.Bucket30, 2)
	bucket.Bucket60 = pricing.Round(bucket.Bucket60, 2)
	bucket.Bucket90 = pricing.Round(bucket.Bucket90, 2)
	bucket.Bucket120 = pricing.Round(bucket.Bucket120, 2)
	return bucket, nil
}

// Document builds the printable view of an invoice. An unknown customer
// prints with its id.
func (s *Service) Document(ctx context.Context, id string) (export.Document, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return export.Document{}, err
	}
	name, address := inv.CustomerID.String(), ""
	if s.parties != nil {
		party, err := s.parties.Get(ctx, masterdata.KindCustomer, inv.CustomerID)
		switch {
		case err == nil:
			name, address = party.Name, party.Address
		case !errors.Is(err, shared.ErrNotFound):
			return export.Document{}, err
		}
	}
	return export.Document{
		Title:        "INVOICE",
		ID:           inv.ID,
		Status:       string(inv.Status),
		Date:         inv.InvoiceDate,
		DueDate:      inv.DueDate,
		PartyLabel:   "BILL TO",
		PartyName:    name,
		PartyAddress: address,
		Currency:     inv.Currency,
		ShowDiscount: inv.ShowDiscount,
		ShowTax:      inv.ShowTax,
		Lines:        inv.Lines,
		Charges:      inv.Charges(),
		Totals:       inv.Totals,
		Notes:        inv.Notes,
	}, nil
}

func (s *Service) fromRequest(req InvoiceRequest) (Invoice, error) {
	if err := shared.Validate(req); err != nil {
		return Invoice{}, err
	}
	invoiceDate, err := shared.ParseDate("invoice_date", req.InvoiceDate, s.now())
	if err != nil {
		return Invoice{}, err
	}
	dueDate, err := shared.ParseDate("due_date", req.DueDate, invoiceDate.AddDate(0, 0, DefaultTermDays))
	if err != nil {
		return Invoice{}, err
	}
	if dueDate.Before(invoiceDate) {
		return Invoice{}, shared.FieldError("due_date", "must not be before invoice_date")
	}
	var orderID *string
	if ref := strings.TrimSpace(req.SalesOrderID); ref != "" {
		orderID = &ref
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	inv := Invoice{
		CustomerID:   uuid.MustParse(req.CustomerID),
		SalesOrderID: orderID,
		InvoiceDate:  invoiceDate,
		DueDate:      dueDate,
		Currency:     currency,
		ShowDiscount: req.ShowDiscount,
		ShowTax:      req.ShowTax,
		Freight:      req.Freight,
		Packing:      req.Packing,
		Handling:     req.Handling,
		Lines:        pricing.Recalculate(req.Lines),
		Notes:        strings.TrimSpace(req.Notes),
	}
	inv.Totals = pricing.ComputeTotals(inv.Lines, pricing.Options{
		ShowDiscountColumn: inv.ShowDiscount,
		ShowTaxColumn:      inv.ShowTax,
		ExtraCharges:       inv.Charges(),
	}).Rounded(2)
	return inv, nil
}

func checkCustomer(ctx context.Context, tx TxRepository, id uuid.UUID) error {
	ok, err := tx.CustomerExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.FieldError("customer_id", "does not exist")
	}
	return nil
}

func checkOrder(ctx context.Context, tx TxRepository, orderID *string) error {
	if orderID == nil {
		return nil
	}
	ok, err := tx.SalesOrderExists(ctx, *orderID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.FieldError("sales_order_id", "does not exist")
	}
	return nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) recordAudit(ctx context.Context, action, id string, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{Action: action, Entity: "invoice", EntityID: id, Meta: meta})
}
