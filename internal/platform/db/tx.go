package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTxAborted is returned when a transaction kept conflicting with concurrent
// writers until the attempt budget ran out. Nothing was committed.
var ErrTxAborted = errors.New("transaction aborted after repeated conflicts")

// DefaultMaxAttempts bounds retries of serialization failures.
const DefaultMaxAttempts = 5

// Beginner is satisfied by *pgxpool.Pool and pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Runner executes callbacks in RepeatableRead transactions, re-running the
// whole callback when Postgres reports a serialization failure or deadlock.
type Runner struct {
	db          Beginner
	maxAttempts int
}

// NewRunner builds a Runner. maxAttempts below 1 falls back to DefaultMaxAttempts.
func NewRunner(db Beginner, maxAttempts int) *Runner {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Runner{db: db, maxAttempts: maxAttempts}
}

// WithTx runs fn inside a transaction. fn must be safe to re-run: it may be
// invoked again from scratch after a conflict.
func (r *Runner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrTxAborted, lastErr)
}

func (r *Runner) runOnce(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
