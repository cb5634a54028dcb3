package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGCounterStore keeps counters in sequence_counters.
type PGCounterStore struct {
	q      Querier
	forUpd bool
}

// NewPGCounterStore binds a store to tx. Loads lock the counter row.
func NewPGCounterStore(tx pgx.Tx) *PGCounterStore {
	return &PGCounterStore{q: tx, forUpd: true}
}

// NewPGCounterReader reads counters without locking, for previews.
func NewPGCounterReader(q Querier) *PGCounterStore {
	return &PGCounterStore{q: q}
}

// LoadCounter implements CounterReader.
func (s *PGCounterStore) LoadCounter(ctx context.Context, id string) (Counter, error) {
	query := `SELECT yearly_counts FROM sequence_counters WHERE counter_id = $1`
	if s.forUpd {
		query += ` FOR UPDATE`
	}
	var raw []byte
	if err := s.q.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Counter{}, ErrCounterNotFound
		}
		return Counter{}, err
	}
	counts := map[int]int64{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &counts); err != nil {
			return Counter{}, fmt.Errorf("decode counter %s: %w", id, err)
		}
	}
	return Counter{ID: id, YearlyCounts: counts}, nil
}

// SaveCounter implements CounterStore.
func (s *PGCounterStore) SaveCounter(ctx context.Context, counter Counter) error {
	if !s.forUpd {
		return errors.New("sequence: read-only counter store")
	}
	raw, err := json.Marshal(counter.YearlyCounts)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `INSERT INTO sequence_counters (counter_id, yearly_counts, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (counter_id) DO UPDATE SET yearly_counts = EXCLUDED.yearly_counts, updated_at = NOW()`,
		counter.ID, raw)
	return err
}
