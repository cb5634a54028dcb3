package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes transactional operations. Receiving stock runs on the
// same transaction as the status change.
type TxRepository interface {
	sequence.CounterStore
	inventory.StockTx

	SupplierExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, error)
	InsertPO(ctx context.Context, po PurchaseOrder) error
	UpdatePO(ctx context.Context, po PurchaseOrder) error
}

type txRepo struct {
	*sequence.PGCounterStore
	*inventory.PGStockTx
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			PGCounterStore: sequence.NewPGCounterStore(tx),
			PGStockTx:      inventory.NewStockTx(tx),
			tx:             tx,
		})
	})
}

const poColumns = `id, supplier_id, order_date, expected_date, status, currency, show_discount, show_tax,
	freight::float8, packing::float8, handling::float8, lines, totals, notes, received_at, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.SupplierID, &po.OrderDate, &po.ExpectedDate, &po.Status, &po.Currency,
		&po.ShowDiscount, &po.ShowTax, &po.Freight, &po.Packing, &po.Handling, &po.Lines, &po.Totals, &po.Notes,
		&po.ReceivedAt, &po.CreatedAt, &po.UpdatedAt)
	return po, err
}

// GetPO loads a purchase order.
func (r *Repository) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, err
}

// ListPOs returns a page of purchase orders, newest first.
func (r *Repository) ListPOs(ctx context.Context, f ListFilters) ([]PurchaseOrder, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.SupplierID != nil {
		args = append(args, *f.SupplierID)
		conds = append(conds, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders%s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		poColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseOrder, error) { return scanPO(row) })
	return out, total, err
}

func (t *txRepo) SupplierExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1 AND is_active)`, id).Scan(&ok)
	return ok, err
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, error) {
	po, err := scanPO(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, err
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_orders (id, supplier_id, order_date, expected_date, status, currency,
		show_discount, show_tax, freight, packing, handling, lines, totals, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		po.ID, po.SupplierID, po.OrderDate, po.ExpectedDate, po.Status, po.Currency, po.ShowDiscount, po.ShowTax,
		po.Freight, po.Packing, po.Handling, po.Lines, po.Totals, po.Notes, po.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: purchase order %s", shared.ErrDuplicate, po.ID)
	}
	return err
}

func (t *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id = $2, order_date = $3, expected_date = $4,
		status = $5, currency = $6, show_discount = $7, show_tax = $8, freight = $9, packing = $10, handling = $11,
		lines = $12, totals = $13, notes = $14, received_at = $15, updated_at = $16 WHERE id = $1`,
		po.ID, po.SupplierID, po.OrderDate, po.ExpectedDate, po.Status, po.Currency, po.ShowDiscount, po.ShowTax,
		po.Freight, po.Packing, po.Handling, po.Lines, po.Totals, po.Notes, po.ReceivedAt, po.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}
