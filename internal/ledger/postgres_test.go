package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/dompet-app/dompet/internal/apperr"
)

func TestClassifyPgError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "lock not available", err: &pgconn.PgError{Code: pgLockNotAvailable}, code: apperr.CodeLockTimeout, retryable: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgDeadlockDetected}, code: apperr.CodeLockTimeout, retryable: true},
		{name: "statement canceled", err: &pgconn.PgError{Code: pgQueryCanceled}, code: apperr.CodeLockTimeout, retryable: true},
		{name: "wrapped lock wait", err: fmt.Errorf("lock accounts: %w", &pgconn.PgError{Code: pgLockNotAvailable}), code: apperr.CodeLockTimeout, retryable: true},
		{name: "deadline before commit", err: context.DeadlineExceeded, code: apperr.CodeLockTimeout, retryable: true},
		{name: "negative balance check", err: &pgconn.PgError{Code: pgCheckViolation}, code: apperr.CodeInsufficientFunds},
		{name: "domain error passes through", err: apperr.AccountNotFound(4), code: apperr.CodeAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr, ok := apperr.As(classifyPgError(tc.err))
			require.True(t, ok)
			require.Equal(t, tc.code, appErr.Code)
			require.Equal(t, tc.retryable, appErr.Retryable)
		})
	}

	t.Run("unknown errors stay internal", func(t *testing.T) {
		cause := &pgconn.PgError{Code: pgUniqueViolation}
		err := classifyPgError(cause)
		_, ok := apperr.As(err)
		require.False(t, ok)
		require.ErrorIs(t, err, cause)
		require.False(t, IsRetryable(err))
	})
}

func TestEntriesQuery(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	to := from.Add(24*time.Hour - time.Nanosecond)

	cases := []struct {
		name   string
		filter EntryFilter
		where  string
		order  string
		args   []any
	}{
		{name: "unfiltered", order: " ORDER BY created_at, id"},
		{
			name:   "account and type",
			filter: EntryFilter{AccountID: 7, Type: EntryTransfer, Descending: true},
			where:  " WHERE (from_account_id = $1 OR to_account_id = $1) AND type = $2",
			order:  " ORDER BY created_at DESC, id DESC",
			args:   []any{int64(7), "TRANSFER"},
		},
		{
			name:   "time range in utc",
			filter: EntryFilter{From: from, To: to},
			where:  " WHERE created_at >= $1 AND created_at <= $2",
			order:  " ORDER BY created_at, id",
			args:   []any{from.UTC(), to.UTC()},
		},
		{
			name:   "everything",
			filter: EntryFilter{AccountID: 3, Type: EntryTopUp, From: from, To: to},
			where:  " WHERE (from_account_id = $1 OR to_account_id = $1) AND type = $2 AND created_at >= $3 AND created_at <= $4",
			order:  " ORDER BY created_at, id",
			args:   []any{int64(3), "TOPUP", from.UTC(), to.UTC()},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := entriesQuery(tc.filter)
			require.Equal(t, `SELECT `+entryColumns+` FROM ledger_entries`+tc.where+tc.order, query)
			require.Equal(t, tc.args, args)
		})
	}
}

func TestNullableColumns(t *testing.T) {
	require.Nil(t, nullableID(0))
	require.Equal(t, int64(5), *nullableID(5))

	require.Nil(t, nullableBalance(Entry{Type: EntryTopUp, ToBalanceAfter: 10}))
	zero := nullableBalance(Entry{Type: EntryTransfer, FromBalanceAfter: 0})
	require.NotNil(t, zero, "a transfer that empties the sender still records its balance")
	require.Equal(t, int64(0), *zero)
}

func TestPostgresApplyLocksInAscendingOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`set_config\('lock_timeout'`).WithArgs("750ms").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FROM accounts WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs([]int64{2, 5}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "full_name", "account_number", "bank_name", "bank_code", "balance", "created_at", "updated_at", "deleted_at"}))
	mock.ExpectCommit()

	store := NewPostgresStore(mock, 750*time.Millisecond)
	err = store.Apply(context.Background(), []int64{5, 2, 5}, func(tx Tx) error {
		_, err := tx.Account(2)
		require.True(t, errors.Is(err, apperr.ErrNotFound))
		_, err = tx.Account(9)
		require.Error(t, err, "unlocked accounts are not visible")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyLockWaitIsRetryable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`set_config`).WithArgs("5000ms").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FOR UPDATE`).WithArgs([]int64{1, 2}).WillReturnError(&pgconn.PgError{Code: pgLockNotAvailable})
	mock.ExpectRollback()

	store := NewPostgresStore(mock, 0)
	called := false
	err = store.Apply(context.Background(), []int64{1, 2}, func(Tx) error {
		called = true
		return nil
	})
	require.False(t, called)
	require.True(t, IsRetryable(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeLockTimeout, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// recordingTx stands in for a pgx transaction and records the context the
// commit ran under.
type recordingTx struct {
	pgx.Tx
	commitErr    error
	commitCtxErr error
	committed    bool
}

func (t *recordingTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (t *recordingTx) Commit(ctx context.Context) error {
	t.committed = true
	t.commitCtxErr = ctx.Err()
	return t.commitErr
}

func (t *recordingTx) Rollback(context.Context) error { return nil }

type recordingPool struct {
	pgxPool
	tx *recordingTx
}

func (p *recordingPool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

func TestPostgresCommitOutlivesCallerDeadline(t *testing.T) {
	tx := &recordingTx{}
	store := NewPostgresStore(&recordingPool{tx: tx}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := store.inTx(ctx, func(pgx.Tx) error {
		// The caller's deadline fires after the writes went through.
		cancel()
		return nil
	})
	require.NoError(t, err)
	require.True(t, tx.committed)
	require.NoError(t, tx.commitCtxErr)
}

func TestPostgresCommitFailureIsNotRetryable(t *testing.T) {
	tx := &recordingTx{commitErr: context.DeadlineExceeded}
	store := NewPostgresStore(&recordingPool{tx: tx}, time.Second)

	err := store.inTx(context.Background(), func(pgx.Tx) error { return nil })
	require.Error(t, err)
	require.False(t, IsRetryable(err), "the commit may have landed")
	_, ok := apperr.As(err)
	require.False(t, ok)
}

func TestPostgresDeadlineBeforeCommitIsRetryable(t *testing.T) {
	tx := &recordingTx{}
	store := NewPostgresStore(&recordingPool{tx: tx}, time.Second)

	err := store.inTx(context.Background(), func(pgx.Tx) error {
		return fmt.Errorf("adjust balance: %w", context.DeadlineExceeded)
	})
	require.True(t, IsRetryable(err))
	require.False(t, tx.committed)
}
