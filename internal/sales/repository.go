package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Repository provides data access for sales documents.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository creates a new sales repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes transactional operations. Counter and stock access run
// on the same transaction as the document writes.
type TxRepository interface {
	sequence.CounterStore
	inventory.StockTx

	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)

	GetQuotationForUpdate(ctx context.Context, id string) (Quotation, error)
	InsertQuotation(ctx context.Context, q Quotation) error
	UpdateQuotation(ctx context.Context, q Quotation) error

	GetSalesOrderForUpdate(ctx context.Context, id string) (SalesOrder, error)
	InsertSalesOrder(ctx context.Context, o SalesOrder) error
	UpdateSalesOrder(ctx context.Context, o SalesOrder) error

	InsertSale(ctx context.Context, s Sale) error
}

type txRepo struct {
	*sequence.PGCounterStore
	*inventory.PGStockTx
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			PGCounterStore: sequence.NewPGCounterStore(tx),
			PGStockTx:      inventory.NewStockTx(tx),
			tx:             tx,
		})
	})
}

// CustomerExists reports whether an active customer with id exists.
func (t *txRepo) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND is_active)`, id).Scan(&ok)
	return ok, err
}

// ============================================================================
// QUOTATIONS
// ============================================================================

const quotationColumns = `id, customer_id, quote_date, valid_until, status, currency, show_discount, show_tax,
	lines, totals, notes, sales_order_id, created_at, updated_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.CustomerID, &q.QuoteDate, &q.ValidUntil, &q.Status, &q.Currency, &q.ShowDiscount, &q.ShowTax,
		&q.Lines, &q.Totals, &q.Notes, &q.SalesOrderID, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

// GetQuotation loads a quotation by id.
func (r *Repository) GetQuotation(ctx context.Context, id string) (Quotation, error) {
	q, err := scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, ErrQuotationNotFound
	}
	return q, err
}

// ListQuotations returns a page of quotations, newest first.
func (r *Repository) ListQuotations(ctx context.Context, f ListFilters) ([]Quotation, int, error) {
	where, args := buildFilters(f, "quote_date")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM quotations%s ORDER BY quote_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Quotation, error) { return scanQuotation(row) })
	return out, total, err
}

// ExpireQuotations marks open quotations whose validity ended before asOf.
func (r *Repository) ExpireQuotations(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `UPDATE quotations SET status = $1, updated_at = NOW()
		WHERE status = ANY($2) AND valid_until < $3 RETURNING id`,
		QuotationStatusExpired, []string{string(QuotationStatusDraft), string(QuotationStatusSubmitted)}, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *txRepo) GetQuotationForUpdate(ctx context.Context, id string) (Quotation, error) {
	q, err := scanQuotation(t.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, ErrQuotationNotFound
	}
	return q, err
}

func (t *txRepo) InsertQuotation(ctx context.Context, q Quotation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO quotations (id, customer_id, quote_date, valid_until, status, currency,
		show_discount, show_tax, lines, totals, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		q.ID, q.CustomerID, q.QuoteDate, q.ValidUntil, q.Status, q.Currency,
		q.ShowDiscount, q.ShowTax, q.Lines, q.Totals, q.Notes, q.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: quotation %s", shared.ErrDuplicate, q.ID)
	}
	return err
}

func (t *txRepo) UpdateQuotation(ctx context.Context, q Quotation) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotations SET customer_id = $2, quote_date = $3, valid_until = $4, status = $5,
		currency = $6, show_discount = $7, show_tax = $8, lines = $9, totals = $10, notes = $11, sales_order_id = $12,
		updated_at = $13 WHERE id = $1`,
		q.ID, q.CustomerID, q.QuoteDate, q.ValidUntil, q.Status, q.Currency, q.ShowDiscount, q.ShowTax,
		q.Lines, q.Totals, q.Notes, q.SalesOrderID, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotationNotFound
	}
	return nil
}

// ============================================================================
// SALES ORDERS
// ============================================================================

const orderColumns = `id, customer_id, quotation_id, order_date, status, currency, show_discount, show_tax,
	lines, totals, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(&o.ID, &o.CustomerID, &o.QuotationID, &o.OrderDate, &o.Status, &o.Currency, &o.ShowDiscount, &o.ShowTax,
		&o.Lines, &o.Totals, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// GetSalesOrder loads an order by id.
func (r *Repository) GetSalesOrder(ctx context.Context, id string) (SalesOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, ErrOrderNotFound
	}
	return o, err
}

// ListSalesOrders returns a page of orders, newest first.
func (r *Repository) ListSalesOrders(ctx context.Context, f ListFilters) ([]SalesOrder, int, error) {
	where, args := buildFilters(f, "order_date")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales_orders%s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SalesOrder, error) { return scanOrder(row) })
	return out, total, err
}

func (t *txRepo) GetSalesOrderForUpdate(ctx context.Context, id string) (SalesOrder, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, ErrOrderNotFound
	}
	return o, err
}

func (t *txRepo) InsertSalesOrder(ctx context.Context, o SalesOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales_orders (id, customer_id, quotation_id, order_date, status, currency,
		show_discount, show_tax, lines, totals, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		o.ID, o.CustomerID, o.QuotationID, o.OrderDate, o.Status, o.Currency,
		o.ShowDiscount, o.ShowTax, o.Lines, o.Totals, o.Notes, o.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: sales order %s", shared.ErrDuplicate, o.ID)
	}
	return err
}

func (t *txRepo) UpdateSalesOrder(ctx context.Context, o SalesOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET customer_id = $2, order_date = $3, status = $4, currency = $5,
		show_discount = $6, show_tax = $7, lines = $8, totals = $9, notes = $10, updated_at = $11 WHERE id = $1`,
		o.ID, o.CustomerID, o.OrderDate, o.Status, o.Currency, o.ShowDiscount, o.ShowTax, o.Lines, o.Totals, o.Notes, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ============================================================================
// SALES RECORDS
// ============================================================================

const saleColumns = `id, customer_id, sale_date, currency, show_discount, show_tax, lines, totals, notes, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.CustomerID, &s.SaleDate, &s.Currency, &s.ShowDiscount, &s.ShowTax,
		&s.Lines, &s.Totals, &s.Notes, &s.CreatedAt)
	return s, err
}

// GetSale loads a sales record by id.
func (r *Repository) GetSale(ctx context.Context, id string) (Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return s, err
}

// ListSales returns a page of sales records, newest first.
func (r *Repository) ListSales(ctx context.Context, f ListFilters) ([]Sale, int, error) {
	f.Status = ""
	where, args := buildFilters(f, "sale_date")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY sale_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Sale, error) { return scanSale(row) })
	return out, total, err
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales (id, customer_id, sale_date, currency, show_discount, show_tax,
		lines, totals, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.CustomerID, s.SaleDate, s.Currency, s.ShowDiscount, s.ShowTax, s.Lines, s.Totals, s.Notes, s.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: sale %s", shared.ErrDuplicate, s.ID)
	}
	return err
}

// buildFilters renders the shared WHERE clause of document listings.
func buildFilters(f ListFilters, dateColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.From != nil {
		add(dateColumn+" >= $%d", *f.From)
	}
	if f.To != nil {
		add(dateColumn+" <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
