package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockTx
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, item Item) error
}

type txRepo struct {
	*PGStockTx
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGStockTx: NewStockTx(tx), tx: tx})
	})
}

// GetItem loads an item without locking.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// ListItems returns a page of items ordered by name.
func (r *Repository) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
		AND (NOT $2 OR is_active)
		AND (NOT $3 OR stock <= reorder_level)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items `+where, filters.Search, filters.ActiveOnly, filters.LowStockOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items `+where+` ORDER BY name, code LIMIT $4 OFFSET $5`,
		filters.Search, filters.ActiveOnly, filters.LowStockOnly, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListLowStock returns every active item at or below its reorder level.
func (r *Repository) ListLowStock(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE is_active AND stock <= reorder_level ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		return scanItem(row)
	})
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO items (id, code, name, unit, unit_price, stock, reorder_level, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		item.ID, item.Code, item.Name, item.Unit, item.UnitPrice, item.Stock, item.ReorderLevel, item.IsActive, item.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: item code %s", shared.ErrDuplicate, item.Code)
	}
	return err
}

func (r *txRepo) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET name = $2, unit = $3, unit_price = $4, reorder_level = $5, is_active = $6, updated_at = $7 WHERE id = $1`,
		item.ID, item.Name, item.Unit, item.UnitPrice, item.ReorderLevel, item.IsActive, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
