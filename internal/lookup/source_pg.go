package lookup

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var optionQueries = map[string]string{
	Customers: `SELECT id::text, code, name FROM customers WHERE is_active ORDER BY name, code`,
	Suppliers: `SELECT id::text, code, name FROM suppliers WHERE is_active ORDER BY name, code`,
	Items:     `SELECT id::text, code, name FROM items WHERE is_active ORDER BY name, code`,
	Employees: `SELECT id, id, full_name FROM employees WHERE is_active ORDER BY full_name, id`,
}

// PGSource reads collections from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// ListOptions implements Source.
func (s *PGSource) ListOptions(ctx context.Context, collection string) ([]Option, error) {
	query, ok := optionQueries[collection]
	if !ok {
		return nil, fmt.Errorf("lookup: no query for %s", collection)
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Option, error) {
		var o Option
		err := row.Scan(&o.ID, &o.Code, &o.Name)
		return o, err
	})
}
