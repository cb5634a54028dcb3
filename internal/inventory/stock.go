package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bizdesk/bizdesk/internal/shared"
)

// StockTx is the slice of inventory that other modules use inside their own
// transactions.
type StockTx interface {
	// LockItems re-reads the items and holds row locks until commit.
	LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error)
	ApplyStockDelta(ctx context.Context, m Movement) error
}

// CheckAvailability fails with a RuleViolation when any requested quantity,
// summed per item, exceeds the locked stock.
func CheckAvailability(items map[uuid.UUID]Item, requests []StockRequest) error {
	wanted := make(map[uuid.UUID]float64, len(requests))
	var order []uuid.UUID
	for _, req := range requests {
		if _, seen := wanted[req.ItemID]; !seen {
			order = append(order, req.ItemID)
		}
		wanted[req.ItemID] += req.Quantity
	}
	for _, id := range order {
		item, ok := items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		if wanted[id] > item.Stock+1e-9 {
			return shared.NewRuleViolation(RuleInsufficientStock,
				"insufficient stock for %s: requested %s, available %s",
				item.Code, formatQty(wanted[id]), formatQty(item.Stock))
		}
	}
	return nil
}

// UniqueIDs returns the distinct ids in sorted order so row locks are always
// taken in the same sequence.
func UniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PGStockTx implements StockTx on a pgx transaction.
type PGStockTx struct {
	tx pgx.Tx
}

// NewStockTx binds stock operations to tx.
func NewStockTx(tx pgx.Tx) *PGStockTx {
	return &PGStockTx{tx: tx}
}

const itemColumns = `id, code, name, unit, unit_price::float8, stock::float8, reorder_level::float8, is_active, created_at, updated_at`

// LockItems implements StockTx.
func (s *PGStockTx) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	ids = UniqueIDs(ids)
	out := make(map[uuid.UUID]Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.tx.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}
	return out, nil
}

// ApplyStockDelta implements StockTx.
func (s *PGStockTx) ApplyStockDelta(ctx context.Context, m Movement) error {
	if m.Delta == 0 {
		return ErrInvalidQuantity
	}
	var stock float64
	err := s.tx.QueryRow(ctx, `UPDATE items SET stock = stock + $2, updated_at = NOW() WHERE id = $1 RETURNING stock::float8`, m.ItemID, m.Delta).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrItemNotFound, m.ItemID)
	}
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, `INSERT INTO stock_movements (item_id, delta, reason, ref_id) VALUES ($1, $2, $3, $4)`, m.ItemID, m.Delta, m.Reason, m.RefID)
	return err
}

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.Code, &i.Name, &i.Unit, &i.UnitPrice, &i.Stock, &i.ReorderLevel, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}
