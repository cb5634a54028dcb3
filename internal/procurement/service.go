package procurement

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

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error)
}

// Service orchestrates procurement flows.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditPort
	metrics shared.DocumentMetrics
	now     func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit shared.AuditPort, metrics shared.DocumentMetrics) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// CreatePurchaseOrder stores a DRAFT purchase order under a fresh PO id.
func (s *Service) CreatePurchaseOrder(ctx context.Context, req PurchaseOrderRequest) (PurchaseOrder, error) {
	po, err := s.fromRequest(req)
	if err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now().UTC()
	po.Status = POStatusDraft
	po.CreatedAt, po.UpdatedAt = now, now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkSupplier(ctx, tx, po.SupplierID); err != nil {
			return err
		}
		id, err := sequence.Allocate(ctx, tx, sequence.PurchaseOrder, po.OrderDate.Year())
		if err != nil {
			return err
		}
		po.ID = id
		return tx.InsertPO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("create purchase order: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DocumentCreated("purchase_order")
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"grand_total": po.Totals.GrandTotal})
	return po, nil
}

// UpdatePurchaseOrder replaces the content of a DRAFT purchase order.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id string, req PurchaseOrderRequest) (PurchaseOrder, error) {
	next, err := s.fromRequest(req)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != POStatusDraft {
			return fmt.Errorf("%w: only DRAFT purchase orders can be updated", shared.ErrInvalidState)
		}
		if err := checkSupplier(ctx, tx, next.SupplierID); err != nil {
			return err
		}
		next.ID = existing.ID
		next.Status = existing.Status
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = s.now().UTC()
		po = next
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("update purchase order: %w", err)
	}
	s.recordAudit(ctx, "PO_UPDATE", po.ID, nil)
	return po, nil
}

// ApprovePurchaseOrder moves a DRAFT order to APPROVED.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.transition(ctx, id, POStatusApproved, nil)
}

// CancelPurchaseOrder cancels an order that has not been received.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.transition(ctx, id, POStatusCancelled, nil)
}

// ReceivePurchaseOrder marks an APPROVED order as received and books every
// stocked line into inventory in the same transaction. Lines without an
// item reference are non-stock purchases.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.transition(ctx, id, POStatusReceived, func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		var ids []uuid.UUID
		for _, line := range po.Lines {
			if line.ItemRef != "" {
				ids = append(ids, uuid.MustParse(line.ItemRef))
			}
		}
		if _, err := tx.LockItems(ctx, ids); err != nil {
			return err
		}
		for _, line := range po.Lines {
			if line.ItemRef == "" || line.Quantity <= 0 {
				continue
			}
			if err := tx.ApplyStockDelta(ctx, inventory.Movement{
				ItemID: uuid.MustParse(line.ItemRef),
				Delta:  line.Quantity,
				Reason: "purchase",
				RefID:  po.ID,
			}); err != nil {
				return err
			}
		}
		receivedAt := s.now().UTC()
		po.ReceivedAt = &receivedAt
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, next POStatus, apply func(context.Context, TxRepository, *PurchaseOrder) error) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !existing.Status.CanTransition(next) {
			return shared.InvalidTransition("purchase order", string(existing.Status), string(next))
		}
		po = existing
		po.Status = next
		po.UpdatedAt = s.now().UTC()
		if apply != nil {
			if err := apply(ctx, tx, &po); err != nil {
				return err
			}
		}
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("%s purchase order: %w", strings.ToLower(string(next)), err)
	}
	s.recordAudit(ctx, "PO_"+string(next), po.ID, nil)
	return po, nil
}

// GetPurchaseOrder returns a single purchase order.
func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders returns a page of purchase orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListPOs(ctx, f)
}

const registerPageSize = 500

// Register collects every purchase order matching f as register rows.
func (s *Service) Register(ctx context.Context, f ListFilters) ([]export.RegisterRow, error) {
	var rows []export.RegisterRow
	f.PerPage = registerPageSize
	for page := 1; ; page++ {
		f.Page = page
		pos, total, err := s.repo.ListPOs(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, po := range pos {
			rows = append(rows, export.RegisterRow{
				ID:       po.ID,
				Date:     po.OrderDate,
				Party:    po.SupplierID.String(),
				Status:   string(po.Status),
				Currency: po.Currency,
				Totals:   po.Totals,
			})
		}
		if len(pos) == 0 || page*registerPageSize >= total {
			return rows, nil
		}
	}
}

func (s *Service) fromRequest(req PurchaseOrderRequest) (PurchaseOrder, error) {
	if err := shared.Validate(req); err != nil {
		return PurchaseOrder{}, err
	}
	orderDate, err := shared.ParseDate("order_date", req.OrderDate, s.now())
	if err != nil {
		return PurchaseOrder{}, err
	}
	var expected *time.Time
	if strings.TrimSpace(req.ExpectedDate) != "" {
		d, err := shared.ParseDate("expected_date", req.ExpectedDate, time.Time{})
		if err != nil {
			return PurchaseOrder{}, err
		}
		if d.Before(orderDate) {
			return PurchaseOrder{}, shared.FieldError("expected_date", "must not be before order_date")
		}
		expected = &d
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	po := PurchaseOrder{
		SupplierID:   uuid.MustParse(req.SupplierID),
		OrderDate:    orderDate,
		ExpectedDate: expected,
		Currency:     currency,
		ShowDiscount: req.ShowDiscount,
		ShowTax:      req.ShowTax,
		Freight:      req.Freight,
		Packing:      req.Packing,
		Handling:     req.Handling,
		Lines:        pricing.Recalculate(req.Lines),
		Notes:        strings.TrimSpace(req.Notes),
	}
	po.Totals = pricing.ComputeTotals(po.Lines, pricing.Options{
		ShowDiscountColumn: po.ShowDiscount,
		ShowTaxColumn:      po.ShowTax,
		ExtraCharges:       po.Charges(),
	}).Rounded(2)
	return po, nil
}

func checkSupplier(ctx context.Context, tx TxRepository, id uuid.UUID) error {
	ok, err := tx.SupplierExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.FieldError("supplier_id", "does not exist")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, id string, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: id, Meta: meta})
}
