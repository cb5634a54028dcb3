package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/export"
	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// RuleQuotationLapsed names the rule that blocks accepting a quotation after
// its validity date.
const RuleQuotationLapsed = "quotation_lapsed"

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuotation(ctx context.Context, id string) (Quotation, error)
	ListQuotations(ctx context.Context, f ListFilters) ([]Quotation, int, error)
	ExpireQuotations(ctx context.Context, asOf time.Time) ([]string, error)
	GetSalesOrder(ctx context.Context, id string) (SalesOrder, error)
	ListSalesOrders(ctx context.Context, f ListFilters) ([]SalesOrder, int, error)
	GetSale(ctx context.Context, id string) (Sale, error)
	ListSales(ctx context.Context, f ListFilters) ([]Sale, int, error)
}

// Service provides business logic for sales operations.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditPort
	idem    shared.IdempotencyPort
	metrics shared.DocumentMetrics
	now     func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, audit shared.AuditPort, idem shared.IdempotencyPort, metrics shared.DocumentMetrics) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, metrics: metrics, now: time.Now}
}

// price recomputes line totals and document totals rounded to cents.
func price(lines []pricing.LineItem, showDiscount, showTax bool) ([]pricing.LineItem, pricing.DocumentTotals) {
	opts := pricing.Options{ShowDiscountColumn: showDiscount, ShowTaxColumn: showTax}
	out := pricing.Recalculate(lines)
	return out, pricing.ComputeTotals(out, opts).Rounded(2)
}

func currency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// ============================================================================
// QUOTATION OPERATIONS
// ============================================================================

// CreateQuotation validates the form and stores a DRAFT quotation under a
// fresh QUO id.
func (s *Service) CreateQuotation(ctx context.Context, req QuotationRequest) (Quotation, error) {
	q, err := s.quotationFromRequest(req)
	if err != nil {
		return Quotation{}, err
	}
	now := s.now().UTC()
	q.Status = QuotationStatusDraft
	q.CreatedAt, q.UpdatedAt = now, now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkCustomer(ctx, tx, q.CustomerID); err != nil {
			return err
		}
		id, err := sequence.Allocate(ctx, tx, sequence.Quotation, q.QuoteDate.Year())
		if err != nil {
			return err
		}
		q.ID = id
		return tx.InsertQuotation(ctx, q)
	})
	if err != nil {
		return Quotation{}, fmt.Errorf("create quotation: %w", err)
	}
	s.created(ctx, "quotation", q.ID, q.Totals)
	return q, nil
}

// UpdateQuotation replaces the content of a DRAFT quotation.
func (s *Service) UpdateQuotation(ctx context.Context, id string, req QuotationRequest) (Quotation, error) {
	next, err := s.quotationFromRequest(req)
	if err != nil {
		return Quotation{}, err
	}
	var q Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != QuotationStatusDraft {
			return fmt.Errorf("%w: only DRAFT quotations can be updated", shared.ErrInvalidState)
		}
		if err := checkCustomer(ctx, tx, next.CustomerID); err != nil {
			return err
		}
		q = existing
		q.CustomerID = next.CustomerID
		q.QuoteDate = next.QuoteDate
		q.ValidUntil = next.ValidUntil
		q.Currency = next.Currency
		q.ShowDiscount = next.ShowDiscount
		q.ShowTax = next.ShowTax
		q.Lines = next.Lines
		q.Totals = next.Totals
		q.Notes = next.Notes
		q.UpdatedAt = s.now().UTC()
		return tx.UpdateQuotation(ctx, q)
	})
	if err != nil {
		return Quotation{}, fmt.Errorf("update quotation: %w", err)
	}
	s.record(ctx, "sales:quotation_update", "quotation", q.ID, nil)
	return q, nil
}

// SubmitQuotation moves a DRAFT quotation to SUBMITTED.
func (s *Service) SubmitQuotation(ctx context.Context, id string) (Quotation, error) {
	return s.transitionQuotation(ctx, id, QuotationStatusSubmitted)
}

// AcceptQuotation records customer acceptance. A quotation past its validity
// date cannot be accepted.
func (s *Service) AcceptQuotation(ctx context.Context, id string) (Quotation, error) {
	return s.transitionQuotation(ctx, id, QuotationStatusAccepted)
}

// RejectQuotation records customer rejection.
func (s *Service) RejectQuotation(ctx context.Context, id string) (Quotation, error) {
	return s.transitionQuotation(ctx, id, QuotationStatusRejected)
}

func (s *Service) transitionQuotation(ctx context.Context, id string, next QuotationStatus) (Quotation, error) {
	var q Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !existing.Status.CanTransition(next) {
			return shared.InvalidTransition("quotation", string(existing.Status), string(next))
		}
		if next == QuotationStatusAccepted && s.today().After(existing.ValidUntil) {
			return shared.NewRuleViolation(RuleQuotationLapsed, "quotation %s lapsed on %s", existing.ID, existing.ValidUntil.Format(shared.DateLayout))
		}
		q = existing
		q.Status = next
		q.UpdatedAt = s.now().UTC()
		return tx.UpdateQuotation(ctx, q)
	})
	if err != nil {
		s.noteViolation(err)
		return Quotation{}, fmt.Errorf("%s quotation: %w", strings.ToLower(string(next)), err)
	}
	s.record(ctx, "sales:quotation_"+strings.ToLower(string(next)), "quotation", q.ID, nil)
	return q, nil
}

// ConvertQuotation turns an ACCEPTED quotation into a DRAFT sales order. The
// order id is allocated and the quotation marked CONVERTED in one transaction.
func (s *Service) ConvertQuotation(ctx context.Context, id string, req ConvertRequest) (SalesOrder, error) {
	orderDate, err := shared.ParseDate("order_date", req.OrderDate, s.now())
	if err != nil {
		return SalesOrder{}, err
	}
	var order SalesOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !q.Status.CanTransition(QuotationStatusConverted) {
			return shared.InvalidTransition("quotation", string(q.Status), string(QuotationStatusConverted))
		}
		orderID, err := sequence.Allocate(ctx, tx, sequence.SalesOrder, orderDate.Year())
		if err != nil {
			return err
		}
		now := s.now().UTC()
		quotationID := q.ID
		order = SalesOrder{
			ID:           orderID,
			CustomerID:   q.CustomerID,
			QuotationID:  &quotationID,
			OrderDate:    orderDate,
			Status:       SalesOrderStatusDraft,
			Currency:     q.Currency,
			ShowDiscount: q.ShowDiscount,
			ShowTax:      q.ShowTax,
			Lines:        append([]pricing.LineItem(nil), q.Lines...),
			Totals:       q.Totals,
			Notes:        q.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertSalesOrder(ctx, order); err != nil {
			return err
		}
		q.Status = QuotationStatusConverted
		q.SalesOrderID = &orderID
		q.UpdatedAt = now
		return tx.UpdateQuotation(ctx, q)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("convert quotation: %w", err)
	}
	s.created(ctx, "sales_order", order.ID, order.Totals)
	s.record(ctx, "sales:quotation_converted", "quotation", id, map[string]any{"sales_order_id": order.ID})
	return order, nil
}

// ExpireQuotations marks DRAFT and SUBMITTED quotations whose validity ended
// before asOf as EXPIRED and reports how many changed.
func (s *Service) ExpireQuotations(ctx context.Context, asOf time.Time) (int, error) {
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	ids, err := s.repo.ExpireQuotations(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("expire quotations: %w", err)
	}
	for _, id := range ids {
		s.record(ctx, "sales:quotation_expired", "quotation", id, nil)
	}
	return len(ids), nil
}

// GetQuotation retrieves a quotation by id.
func (s *Service) GetQuotation(ctx context.Context, id string) (Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

// ListQuotations lists quotations with filters.
func (s *Service) ListQuotations(ctx context.Context, f ListFilters) ([]Quotation, int, error) {
	return s.repo.ListQuotations(ctx, f)
}

func (s *Service) quotationFromRequest(req QuotationRequest) (Quotation, error) {
	if err := shared.Validate(req); err != nil {
		return Quotation{}, err
	}
	quoteDate, err := shared.ParseDate("quote_date", req.QuoteDate, s.now())
	if err != nil {
		return Quotation{}, err
	}
	validUntil, err := shared.ParseDate("valid_until", req.ValidUntil, time.Time{})
	if err != nil {
		return Quotation{}, err
	}
	if validUntil.Before(quoteDate) {
		return Quotation{}, shared.FieldError("valid_until", "must not be before quote_date")
	}
	lines, totals := price(req.Lines, req.ShowDiscount, req.ShowTax)
	return Quotation{
		CustomerID:   uuid.MustParse(req.CustomerID),
		QuoteDate:    quoteDate,
		ValidUntil:   validUntil,
		Currency:     currency(req.Currency),
		ShowDiscount: req.ShowDiscount,
		ShowTax:      req.ShowTax,
		Lines:        lines,
		Totals:       totals,
		Notes:        strings.TrimSpace(req.Notes),
	}, nil
}

// ============================================================================
// SALES ORDER OPERATIONS
// ============================================================================

// CreateSalesOrder stores a DRAFT order under a fresh ORD id.
func (s *Service) CreateSalesOrder(ctx context.Context, req SalesOrderRequest) (SalesOrder, error) {
	o, err := s.orderFromRequest(req)
	if err != nil {
		return SalesOrder{}, err
	}
	now := s.now().UTC()
	o.Status = SalesOrderStatusDraft
	o.CreatedAt, o.UpdatedAt = now, now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkCustomer(ctx, tx, o.CustomerID); err != nil {
			return err
		}
		id, err := sequence.Allocate(ctx, tx, sequence.SalesOrder, o.OrderDate.Year())
		if err != nil {
			return err
		}
		o.ID = id
		return tx.InsertSalesOrder(ctx, o)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("create sales order: %w", err)
	}
	s.created(ctx, "sales_order", o.ID, o.Totals)
	return o, nil
}

// UpdateSalesOrder replaces the content of a DRAFT order.
func (s *Service) UpdateSalesOrder(ctx context.Context, id string, req SalesOrderRequest) (SalesOrder, error) {
	next, err := s.orderFromRequest(req)
	if err != nil {
		return SalesOrder{}, err
	}
	var o SalesOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetSalesOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != SalesOrderStatusDraft {
			return fmt.Errorf("%w: only DRAFT sales orders can be updated", shared.ErrInvalidState)
		}
		if err := checkCustomer(ctx, tx, next.CustomerID); err != nil {
			return err
		}
		o = existing
		o.CustomerID = next.CustomerID
		o.OrderDate = next.OrderDate
		o.Currency = next.Currency
		o.ShowDiscount = next.ShowDiscount
		o.ShowTax = next.ShowTax
		o.Lines = next.Lines
		o.Totals = next.Totals
		o.Notes = next.Notes
		o.UpdatedAt = s.now().UTC()
		return tx.UpdateSalesOrder(ctx, o)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("update sales order: %w", err)
	}
	s.record(ctx, "sales:order_update", "sales_order", o.ID, nil)
	return o, nil
}

// ConfirmSalesOrder confirms a DRAFT order.
func (s *Service) ConfirmSalesOrder(ctx context.Context, id string) (SalesOrder, error) {
	return s.transitionOrder(ctx, id, SalesOrderStatusConfirmed)
}

// CancelSalesOrder cancels a DRAFT or CONFIRMED order.
func (s *Service) CancelSalesOrder(ctx context.Context, id string) (SalesOrder, error) {
	return s.transitionOrder(ctx, id, SalesOrderStatusCancelled)
}

func (s *Service) transitionOrder(ctx context.Context, id string, next SalesOrderStatus) (SalesOrder, error) {
	var o SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetSalesOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !existing.Status.CanTransition(next) {
			return shared.InvalidTransition("sales order", string(existing.Status), string(next))
		}
		o = existing
		o.Status = next
		o.UpdatedAt = s.now().UTC()
		return tx.UpdateSalesOrder(ctx, o)
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("%s sales order: %w", strings.ToLower(string(next)), err)
	}
	s.record(ctx, "sales:order_"+strings.ToLower(string(next)), "sales_order", o.ID, nil)
	return o, nil
}

// GetSalesOrder retrieves an order by id.
func (s *Service) GetSalesOrder(ctx context.Context, id string) (SalesOrder, error) {
	return s.repo.GetSalesOrder(ctx, id)
}

// ListSalesOrders lists orders with filters.
func (s *Service) ListSalesOrders(ctx context.Context, f ListFilters) ([]SalesOrder, int, error) {
	return s.repo.ListSalesOrders(ctx, f)
}

func (s *Service) orderFromRequest(req SalesOrderRequest) (SalesOrder, error) {
	if err := shared.Validate(req); err != nil {
		return SalesOrder{}, err
	}
	orderDate, err := shared.ParseDate("order_date", req.OrderDate, s.now())
	if err != nil {
		return SalesOrder{}, err
	}
	lines, totals := price(req.Lines, req.ShowDiscount, req.ShowTax)
	return SalesOrder{
		CustomerID:   uuid.MustParse(req.CustomerID),
		OrderDate:    orderDate,
		Currency:     currency(req.Currency),
		ShowDiscount: req.ShowDiscount,
		ShowTax:      req.ShowTax,
		Lines:        lines,
		Totals:       totals,
		Notes:        strings.TrimSpace(req.Notes),
	}, nil
}

// ============================================================================
// SALES RECORD OPERATIONS
// ============================================================================

// RecordSale books a point-of-sale record. Within one transaction it locks
// and re-reads every referenced item, aborts with a RuleViolation when a
// line asks for more than is in stock, allocates the SAL id, writes the sale
// and takes the quantities out of stock. A non-empty idempotencyKey rejects a
// second submission of the same form.
func (s *Service) RecordSale(ctx context.Context, req SaleRequest, idempotencyKey string) (Sale, error) {
	sale, requests, err := s.saleFromRequest(req)
	if err != nil {
		return Sale{}, err
	}
	ids := make([]uuid.UUID, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ItemID)
	}

	guarded := idempotencyKey != "" && s.idem != nil
	if guarded {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, IdempotencyModule); err != nil {
			return Sale{}, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if sale.CustomerID != nil {
			if err := checkCustomer(ctx, tx, *sale.CustomerID); err != nil {
				return err
			}
		}
		locked, err := tx.LockItems(ctx, ids)
		if err != nil {
			return err
		}
		if err := inventory.CheckAvailability(locked, requests); err != nil {
			return err
		}
		id, err := sequence.Allocate(ctx, tx, sequence.Sale, sale.SaleDate.Year())
		if err != nil {
			return err
		}
		sale.ID = id
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, r := range requests {
			if err := tx.ApplyStockDelta(ctx, inventory.Movement{ItemID: r.ItemID, Delta: -r.Quantity, Reason: "sale", RefID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if guarded {
			_ = s.idem.Delete(ctx, idempotencyKey)
		}
		s.noteViolation(err)
		return Sale{}, fmt.Errorf("record sale: %w", err)
	}
	s.created(ctx, "sale", sale.ID, sale.Totals)
	return sale, nil
}

// GetSale retrieves a sales record by id.
func (s *Service) GetSale(ctx context.Context, id string) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales lists sales records with filters.
func (s *Service) ListSales(ctx context.Context, f ListFilters) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, f)
}

// registerPageSize bounds each read of Register.
const registerPageSize = 500

// Register returns every sales record matching f as register rows.
func (s *Service) Register(ctx context.Context, f ListFilters) ([]export.RegisterRow, error) {
	f.Page, f.PerPage = 1, registerPageSize
	var rows []export.RegisterRow
	for {
		items, total, err := s.repo.ListSales(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("sales register: %w", err)
		}
		for _, sale := range items {
			party := "Walk-in"
			if sale.CustomerID != nil {
				party = sale.CustomerID.String()
			}
			rows = append(rows, export.RegisterRow{
				ID:       sale.ID,
				Date:     sale.SaleDate,
				Party:    party,
				Status:   "RECORDED",
				Currency: sale.Currency,
				Totals:   sale.Totals,
			})
		}
		if len(items) == 0 || len(rows) >= total {
			return rows, nil
		}
		f.Page++
	}
}

func (s *Service) saleFromRequest(req SaleRequest) (Sale, []inventory.StockRequest, error) {
	if err := shared.Validate(req); err != nil {
		return Sale{}, nil, err
	}
	saleDate, err := shared.ParseDate("sale_date", req.SaleDate, s.now())
	if err != nil {
		return Sale{}, nil, err
	}
	requests := make([]inventory.StockRequest, 0, len(req.Lines))
	for i, line := range req.Lines {
		if line.ItemRef == "" {
			return Sale{}, nil, shared.FieldError(fmt.Sprintf("lines[%d].item_ref", i), "is required")
		}
		requests = append(requests, inventory.StockRequest{ItemID: uuid.MustParse(line.ItemRef), Quantity: line.Quantity})
	}
	var customerID *uuid.UUID
	if req.CustomerID != "" {
		id := uuid.MustParse(req.CustomerID)
		customerID = &id
	}
	lines, totals := price(req.Lines, req.ShowDiscount, req.ShowTax)
	return Sale{
		CustomerID:   customerID,
		SaleDate:     saleDate,
		Currency:     currency(req.Currency),
		ShowDiscount: req.ShowDiscount,
		ShowTax:      req.ShowTax,
		Lines:        lines,
		Totals:       totals,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    s.now().UTC(),
	}, requests, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) created(ctx context.Context, kind, id string, totals pricing.DocumentTotals) {
	if s.metrics != nil {
		s.metrics.DocumentCreated(kind)
	}
	s.record(ctx, "sales:"+kind+"_create", kind, id, map[string]any{"grand_total": totals.GrandTotal})
}

func (s *Service) noteViolation(err error) {
	if s.metrics == nil {
		return
	}
	if v, ok := shared.AsRuleViolation(err); ok {
		s.metrics.RuleViolated(v.Rule)
	}
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{Action: action, Entity: entity, EntityID: id, Meta: meta})
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
