package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes the operations that run inside a transaction.
type TxRepository interface {
	sequence.CounterStore
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
	SalesOrderExists(ctx context.Context, id string) (bool, error)
	GetInvoiceForUpdate(ctx context.Context, id string) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
}

type txRepo struct {
	*sequence.PGCounterStore
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGCounterStore: sequence.NewPGCounterStore(tx), tx: tx})
	})
}

const invoiceColumns = `id, customer_id, sales_order_id, invoice_date, due_date, status, currency, show_discount, show_tax,
	freight::float8, packing::float8, handling::float8, lines, totals, notes, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var i Invoice
	err := row.Scan(&i.ID, &i.CustomerID, &i.SalesOrderID, &i.InvoiceDate, &i.DueDate, &i.Status, &i.Currency,
		&i.ShowDiscount, &i.ShowTax, &i.Freight, &i.Packing, &i.Handling, &i.Lines, &i.Totals, &i.Notes,
		&i.CreatedAt, &i.UpdatedAt)
	return i, err
}

// GetInvoice loads an invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

// ListInvoices returns a page of invoices, newest first.
func (r *Repository) ListInvoices(ctx context.Context, f ListFilters) ([]Invoice, int, error) {
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
	if f.Overdue {
		add("due_date < $%d", f.AsOf)
		conds = append(conds, fmt.Sprintf("status = '%s'", StatusIssued))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) { return scanInvoice(row) })
	return out, total, err
}

// ListOutstanding returns every ISSUED invoice.
func (r *Repository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 ORDER BY due_date`, StatusIssued)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) { return scanInvoice(row) })
}

func (t *txRepo) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND is_active)`, id).Scan(&ok)
	return ok, err
}

func (t *txRepo) SalesOrderExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales_orders WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id string) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoices (id, customer_id, sales_order_id, invoice_date, due_date, status, currency,
		show_discount, show_tax, freight, packing, handling, lines, totals, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`,
		inv.ID, inv.CustomerID, inv.SalesOrderID, inv.InvoiceDate, inv.DueDate, inv.Status, inv.Currency,
		inv.ShowDiscount, inv.ShowTax, inv.Freight, inv.Packing, inv.Handling, inv.Lines, inv.Totals, inv.Notes, inv.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: invoice %s", shared.ErrDuplicate, inv.ID)
	}
	return err
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET customer_id = $2, sales_order_id = $3, invoice_date = $4, due_date = $5,
		status = $6, currency = $7, show_discount = $8, show_tax = $9, freight = $10, packing = $11, handling = $12,
		lines = $13, totals = $14, notes = $15, updated_at = $16 WHERE id = $1`,
		inv.ID, inv.CustomerID, inv.SalesOrderID, inv.InvoiceDate, inv.DueDate, inv.Status, inv.Currency,
		inv.ShowDiscount, inv.ShowTax, inv.Freight, inv.Packing, inv.Handling, inv.Lines, inv.Totals, inv.Notes, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
