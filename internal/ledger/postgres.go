package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dompet-app/dompet/internal/apperr"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	pgQueryCanceled     = "57014"
	accountColumns      = `id, full_name, account_number, bank_name, bank_code, balance, created_at, updated_at, deleted_at`
	entryColumns        = `id, type, amount, from_account_id, to_account_id, from_balance_after, to_balance_after, created_at`
	lockAccountsQuery   = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	setLockTimeoutQuery = `SELECT set_config('lock_timeout', $1, true)`
	commitTimeout       = 10 * time.Second
)

// pgxPool is the slice of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ pgxPool = (*pgxpool.Pool)(nil)

// PostgresStore keeps accounts and the transaction log in PostgreSQL. Each
// ledger operation is one transaction holding row locks on the involved
// accounts.
type PostgresStore struct {
	db          pgxPool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. lockTimeout bounds
// row lock waits inside each transaction.
func NewPostgresStore(db pgxPool, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO accounts (full_name, account_number, bank_name, bank_code, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, $5, $6)
        RETURNING `+accountColumns,
		account.FullName, account.AccountNumber, account.BankName, account.BankCode, account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Account{}, errAccountNumberTaken()
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Account(ctx context.Context, id int64) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.AccountNotFound(id)
		}
		return Account{}, fmt.Errorf("select account %d: %w", id, err)
	}
	return account, nil
}

func (s *PostgresStore) Accounts(ctx context.Context, includeDeleted bool) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE $1 OR deleted_at IS NULL
        ORDER BY id`, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, collectAccount)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *PostgresStore) LookupAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, collectAccount)
	if err != nil {
		return nil, fmt.Errorf("lookup accounts: %w", err)
	}
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out, nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id int64, at time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE accounts SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at.UTC())
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperr.AccountNotFound(id)
		}
		return nil
	})
}

func (s *PostgresStore) Apply(ctx context.Context, accountIDs []int64, fn func(tx Tx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockAccountsQuery, lockOrder(accountIDs))
		if err != nil {
			return err
		}
		locked, err := pgx.CollectRows(rows, collectAccount)
		if err != nil {
			return err
		}

		ptx := &postgresTx{ctx: ctx, tx: tx, accounts: make(map[int64]Account, len(locked)), locked: make(map[int64]bool, len(accountIDs))}
		for _, id := range accountIDs {
			ptx.locked[id] = true
		}
		for _, a := range locked {
			ptx.accounts[a.ID] = a
		}
		return fn(ptx)
	})
}

func (s *PostgresStore) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	query, args := entriesQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, collectEntry)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	return entries, nil
}

func entriesQuery(filter EntryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.AccountID != 0 {
		add("(from_account_id = $%[1]d OR to_account_id = $%[1]d)", filter.AccountID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To.UTC())
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + entryColumns + ` FROM ledger_entries`)
	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if filter.Descending {
		query.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		query.WriteString(" ORDER BY created_at, id")
	}
	return query.String(), args
}

// inTx runs fn in a transaction with the store's lock timeout and maps lock
// and constraint failures onto the ledger's error kinds. ctx bounds the
// work up to the commit only: once fn has succeeded the commit runs
// detached from ctx, and a commit failure is never reported as retryable
// because the server may have applied it.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPgError(err)
	}
	detached := context.WithoutCancel(ctx)
	defer tx.Rollback(detached) // nolint:errcheck

	if _, err := tx.Exec(ctx, setLockTimeoutQuery, fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
		return classifyPgError(err)
	}
	if err := fn(tx); err != nil {
		return classifyPgError(err)
	}

	commitCtx, cancel := context.WithTimeout(detached, commitTimeout)
	defer cancel()
	if err := tx.Commit(commitCtx); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	ctx      context.Context
	tx       pgx.Tx
	accounts map[int64]Account
	locked   map[int64]bool
}

func (t *postgresTx) Account(id int64) (Account, error) {
	if !t.locked[id] {
		return Account{}, fmt.Errorf("account %d is not locked by this transaction", id)
	}
	account, ok := t.accounts[id]
	if !ok {
		return Account{}, apperr.AccountNotFound(id)
	}
	return account, nil
}

func (t *postgresTx) AdjustBalance(id, delta int64, at time.Time) (int64, error) {
	account, err := t.Account(id)
	if err != nil {
		return 0, err
	}
	if account.Balance+delta < 0 {
		return 0, apperr.InsufficientFunds(fmt.Sprintf("user %d has insufficient balance", id))
	}

	var balance int64
	err = t.tx.QueryRow(t.ctx, `UPDATE accounts SET balance = balance + $2, updated_at = $3 WHERE id = $1 RETURNING balance`,
		id, delta, at.UTC()).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("adjust balance of account %d: %w", id, err)
	}
	account.Balance = balance
	account.UpdatedAt = at
	t.accounts[id] = account
	return balance, nil
}

func (t *postgresTx) Append(entry Entry) error {
	_, err := t.tx.Exec(t.ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, string(entry.Type), entry.Amount,
		nullableID(entry.FromAccountID), entry.ToAccountID,
		nullableBalance(entry), entry.ToBalanceAfter, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		deletedAt *time.Time
	)
	if err := row.Scan(&a.ID, &a.FullName, &a.AccountNumber, &a.BankName, &a.BankCode, &a.Balance, &a.CreatedAt, &a.UpdatedAt, &deletedAt); err != nil {
		return Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if deletedAt != nil {
		t := deletedAt.UTC()
		a.DeletedAt = &t
	}
	return a, nil
}

func collectAccount(row pgx.CollectableRow) (Account, error) {
	return scanAccount(row)
}

func collectEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e                Entry
		kind             string
		fromID           *int64
		fromBalanceAfter *int64
	)
	if err := row.Scan(&e.ID, &kind, &e.Amount, &fromID, &e.ToAccountID, &fromBalanceAfter, &e.ToBalanceAfter, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(kind)
	e.CreatedAt = e.CreatedAt.UTC()
	if fromID != nil {
		e.FromAccountID = *fromID
	}
	if fromBalanceAfter != nil {
		e.FromBalanceAfter = *fromBalanceAfter
	}
	return e, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullableBalance(e Entry) *int64 {
	if e.Type != EntryTransfer {
		return nil
	}
	b := e.FromBalanceAfter
	return &b
}

func classifyPgError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.LockTimeout(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgQueryCanceled:
			return apperr.LockTimeout(err)
		case pgCheckViolation:
			return apperr.InsufficientFunds("balance cannot go negative", apperr.WithErr(err))
		}
	}
	return fmt.Errorf("ledger transaction: %w", err)
}
