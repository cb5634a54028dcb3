package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	txs []*fakeTx
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestRunnerRetriesSerializationFailures(t *testing.T) {
	b := &fakeBeginner{}
	runner := NewRunner(b, 3)
	calls := 0

	err := runner.WithTx(context.Background(), func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, b.txs[0].rolledBack)
	require.True(t, b.txs[2].committed)
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	b := &fakeBeginner{}
	runner := NewRunner(b, 2)

	err := runner.WithTx(context.Background(), func(pgx.Tx) error {
		return &pgconn.PgError{Code: "40P01"}
	})

	require.ErrorIs(t, err, ErrTxAborted)
	require.Len(t, b.txs, 2)
	for _, tx := range b.txs {
		require.False(t, tx.committed)
	}
}

func TestRunnerDoesNotRetryOtherErrors(t *testing.T) {
	b := &fakeBeginner{}
	runner := NewRunner(b, 5)
	boom := errors.New("insufficient stock")

	err := runner.WithTx(context.Background(), func(pgx.Tx) error { return boom })

	require.ErrorIs(t, err, boom)
	require.Len(t, b.txs, 1)
	require.True(t, b.txs[0].rolledBack)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(errors.New("x")))
}

func TestIsForeignKeyViolation(t *testing.T) {
	require.True(t, IsForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})))
	require.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
}
