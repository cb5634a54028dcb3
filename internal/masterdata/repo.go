package masterdata

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

// Repository persists customers and suppliers.
type Repository interface {
	Create(ctx context.Context, p Party) error
	Update(ctx context.Context, p Party) error
	Get(ctx context.Context, kind Kind, id uuid.UUID) (Party, error)
	List(ctx context.Context, kind Kind, filters ListFilters) ([]Party, int, error)
}

// repo implements Repository on PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

const partyColumns = `id, code, name, email, phone, tax_id, address, is_active, created_at, updated_at`

func (r *repo) Create(ctx context.Context, p Party) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, code, name, email, phone, tax_id, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`, p.Kind.table())
	_, err := r.db.Exec(ctx, query, p.ID, p.Code, p.Name, p.Email, p.Phone, p.TaxID, p.Address, p.IsActive, p.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s code %s", shared.ErrDuplicate, p.Kind, p.Code)
	}
	return err
}

func (r *repo) Update(ctx context.Context, p Party) error {
	query := fmt.Sprintf(`UPDATE %s SET name = $2, email = $3, phone = $4, tax_id = $5, address = $6, is_active = $7, updated_at = $8
		WHERE id = $1`, p.Kind.table())
	tag, err := r.db.Exec(ctx, query, p.ID, p.Name, p.Email, p.Phone, p.TaxID, p.Address, p.IsActive, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartyNotFound
	}
	return nil
}

func (r *repo) Get(ctx context.Context, kind Kind, id uuid.UUID) (Party, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, partyColumns, kind.table())
	p, err := scanParty(r.db.QueryRow(ctx, query, id), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrPartyNotFound
	}
	return p, err
}

func (r *repo) List(ctx context.Context, kind Kind, filters ListFilters) ([]Party, int, error) {
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%') AND (NOT $2 OR is_active)`
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, kind.table(), where)
	if err := r.db.QueryRow(ctx, countQuery, filters.Search, filters.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY name, code LIMIT $3 OFFSET $4`, partyColumns, kind.table(), where)
	rows, err := r.db.Query(ctx, query, filters.Search, filters.ActiveOnly, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		p, err := scanParty(rows, kind)
		if err != nil {
			return nil, 0, err
		}
		parties = append(parties, p)
	}
	return parties, total, rows.Err()
}

func scanParty(row pgx.Row, kind Kind) (Party, error) {
	p := Party{Kind: kind}
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Email, &p.Phone, &p.TaxID, &p.Address, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
