package ledger

import (
	"context"
	"time"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	// EntryTopUp credits one account with externally funded money.
	EntryTopUp EntryType = "TOPUP"
	// EntryTransfer moves money between two accounts.
	EntryTransfer EntryType = "TRANSFER"
)

// Account is a wallet holder and its current balance. Balance is only ever
// changed by the Engine.
type Account struct {
	ID            int64
	FullName      string
	AccountNumber string
	BankName      string
	BankCode      string
	Balance       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Deleted reports whether the account has been tombstoned.
func (a Account) Deleted() bool {
	return a.DeletedAt != nil
}

// Entry is an immutable record of one balance-affecting event. A transfer
// is a single entry that carries the post-commit balance of both sides.
// FromAccountID is zero for top-ups.
type Entry struct {
	ID               int64
	Type             EntryType
	Amount           int64
	FromAccountID    int64
	ToAccountID      int64
	FromBalanceAfter int64
	ToBalanceAfter   int64
	CreatedAt        time.Time
}

// Touches reports whether the entry references the account on either side.
func (e Entry) Touches(accountID int64) bool {
	return accountID != 0 && (e.FromAccountID == accountID || e.ToAccountID == accountID)
}

// BalanceAfter returns the balance of accountID right after the entry was applied.
func (e Entry) BalanceAfter(accountID int64) (int64, bool) {
	switch accountID {
	case 0:
		return 0, false
	case e.ToAccountID:
		return e.ToBalanceAfter, true
	case e.FromAccountID:
		return e.FromBalanceAfter, true
	default:
		return 0, false
	}
}

// Delta returns the signed effect of the entry on accountID's balance.
func (e Entry) Delta(accountID int64) int64 {
	var delta int64
	if e.ToAccountID == accountID {
		delta += e.Amount
	}
	if e.FromAccountID == accountID {
		delta -= e.Amount
	}
	return delta
}

// EntryFilter narrows a log scan. Zero values mean "no constraint"; the
// time bounds are inclusive.
type EntryFilter struct {
	AccountID  int64
	Type       EntryType
	From       time.Time
	To         time.Time
	Descending bool
}

// Match reports whether e passes the filter.
func (f EntryFilter) Match(e Entry) bool {
	if f.AccountID != 0 && !e.Touches(f.AccountID) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// AccountStore persists account records.
type AccountStore interface {
	// CreateAccount assigns an id to the account and stores it. The
	// account number must be unique across all accounts, deleted or not.
	CreateAccount(ctx context.Context, account Account) (Account, error)
	// Account returns the account, including tombstoned ones.
	Account(ctx context.Context, id int64) (Account, error)
	// Accounts lists accounts in creation order.
	Accounts(ctx context.Context, includeDeleted bool) ([]Account, error)
	// LookupAccounts returns the known accounts among ids, deleted ones included.
	LookupAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	// DeleteAccount tombstones a live account.
	DeleteAccount(ctx context.Context, id int64, at time.Time) error
}

// Log reads the append-only transaction log.
type Log interface {
	Entries(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

// Store is the transactional backend behind the Engine.
type Store interface {
	AccountStore
	Log
	// Apply locks the given accounts in ascending id order and runs fn.
	// Balance changes and appended entries become visible together when fn
	// returns nil, and are discarded otherwise. A lock wait that outlives
	// ctx fails with a retryable conflict.
	Apply(ctx context.Context, accountIDs []int64, fn func(tx Tx) error) error
}

// Tx is the view of the store inside Apply. Only accounts passed to Apply
// may be read or adjusted.
type Tx interface {
	Account(id int64) (Account, error)
	AdjustBalance(id, delta int64, at time.Time) (int64, error)
	Append(entry Entry) error
}
