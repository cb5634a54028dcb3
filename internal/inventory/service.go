package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/lookup"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
	ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error)
	ListLowStock(ctx context.Context) ([]Item, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditPort
	lookups shared.CollectionInvalidator
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, lookups shared.CollectionInvalidator) *Service {
	return &Service{repo: repo, audit: audit, lookups: lookups, now: time.Now}
}

// CreateItem registers an item. Opening stock is booked as a movement.
func (s *Service) CreateItem(ctx context.Context, req CreateItemRequest) (Item, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := shared.Validate(req); err != nil {
		return Item{}, err
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}
	now := s.now().UTC()
	item := Item{
		ID:           uuid.New(),
		Code:         req.Code,
		Name:         req.Name,
		Unit:         unit,
		UnitPrice:    req.UnitPrice,
		ReorderLevel: req.ReorderLevel,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if req.Stock > 0 {
			return tx.ApplyStockDelta(ctx, Movement{ItemID: item.ID, Delta: req.Stock, Reason: "opening", RefID: item.Code})
		}
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("create item: %w", err)
	}
	item.Stock = req.Stock
	s.changed(ctx, "inventory:item_create", item, nil)
	return item, nil
}

// UpdateItem applies the non-nil fields of req.
func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, req UpdateItemRequest) (Item, error) {
	if err := shared.Validate(req); err != nil {
		return Item{}, err
	}
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockItems(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		item := locked[id]
		if req.Name != nil {
			item.Name = strings.TrimSpace(*req.Name)
		}
		if req.Unit != nil {
			item.Unit = *req.Unit
		}
		if req.UnitPrice != nil {
			item.UnitPrice = *req.UnitPrice
		}
		if req.ReorderLevel != nil {
			item.ReorderLevel = *req.ReorderLevel
		}
		if req.IsActive != nil {
			item.IsActive = *req.IsActive
		}
		item.UpdatedAt = s.now().UTC()
		updated = item
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return Item{}, fmt.Errorf("update item: %w", err)
	}
	s.changed(ctx, "inventory:item_update", updated, nil)
	return updated, nil
}

// AdjustStock applies a signed manual correction. Stock never goes below zero.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, req AdjustStockRequest) (Item, error) {
	if err := shared.Validate(req); err != nil {
		return Item{}, err
	}
	if math.Abs(req.Delta) < 1e-9 || math.IsNaN(req.Delta) || math.IsInf(req.Delta, 0) {
		return Item{}, shared.FieldError("delta", "must be a non-zero number")
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockItems(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		item = locked[id]
		if req.Delta < 0 {
			if err := CheckAvailability(locked, []StockRequest{{ItemID: id, Quantity: -req.Delta}}); err != nil {
				return err
			}
		}
		if err := tx.ApplyStockDelta(ctx, Movement{ItemID: id, Delta: req.Delta, Reason: "adjustment: " + req.Reason}); err != nil {
			return err
		}
		item.Stock += req.Delta
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("adjust stock: %w", err)
	}
	s.changed(ctx, "inventory:adjust", item, map[string]any{"delta": req.Delta, "reason": req.Reason})
	return item, nil
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns a page of items.
func (s *Service) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filters)
}

// ListLowStock returns active items at or below reorder level.
func (s *Service) ListLowStock(ctx context.Context) ([]Item, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) changed(ctx context.Context, action string, item Item, meta map[string]any) {
	if s.lookups != nil {
		s.lookups.Invalidate(ctx, lookup.Items)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["code"] = item.Code
	meta["stock"] = item.Stock
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		Action:   action,
		Entity:   "item",
		EntityID: item.ID.String(),
		Meta:     meta,
	})
}
