package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dompet-app/dompet/internal/apperr"
)

// InMemoryStore is a concurrency-safe Store kept in process memory. Balance
// mutations serialise per account through keyed locks; mu only guards the
// maps and is held briefly, so readers never wait on an account lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[int64]Account
	order    []int64
	numbers  map[string]int64
	entries  []Entry
	lastID   int64
	locks    *keyedLocks
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[int64]Account),
		numbers:  make(map[string]int64),
		locks:    newKeyedLocks(),
	}
}

func (s *InMemoryStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.numbers[account.AccountNumber]; taken {
		return Account{}, errAccountNumberTaken()
	}

	s.lastID++
	account.ID = s.lastID
	account.Balance = 0
	account.DeletedAt = nil
	s.accounts[account.ID] = account
	s.order = append(s.order, account.ID)
	s.numbers[account.AccountNumber] = account.ID
	return account, nil
}

func (s *InMemoryStore) Account(_ context.Context, id int64) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, apperr.AccountNotFound(id)
	}
	return account, nil
}

func (s *InMemoryStore) Accounts(_ context.Context, includeDeleted bool) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.order))
	for _, id := range s.order {
		account := s.accounts[id]
		if account.Deleted() && !includeDeleted {
			continue
		}
		out = append(out, account)
	}
	return out, nil
}

func (s *InMemoryStore) LookupAccounts(_ context.Context, ids []int64) (map[int64]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Account, len(ids))
	for _, id := range ids {
		if account, ok := s.accounts[id]; ok {
			out[id] = account
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteAccount(ctx context.Context, id int64, at time.Time) error {
	release, err := s.locks.lockAll(ctx, []int64{id})
	if err != nil {
		return lockError(err)
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok || account.Deleted() {
		return apperr.AccountNotFound(id)
	}
	account.DeletedAt = &at
	s.accounts[id] = account
	return nil
}

func (s *InMemoryStore) Apply(ctx context.Context, accountIDs []int64, fn func(tx Tx) error) error {
	release, err := s.locks.lockAll(ctx, accountIDs)
	if err != nil {
		return lockError(err)
	}
	defer release()

	tx := &memoryTx{accounts: make(map[int64]Account, len(accountIDs)), locked: make(map[int64]bool, len(accountIDs))}
	s.mu.RLock()
	for _, id := range accountIDs {
		tx.locked[id] = true
		if account, ok := s.accounts[id]; ok {
			tx.accounts[id] = account
		}
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.dirty {
		s.accounts[id] = tx.accounts[id]
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *InMemoryStore) Entries(_ context.Context, filter EntryFilter) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sortEntries(out, filter.Descending)
	return out, nil
}

type memoryTx struct {
	accounts map[int64]Account
	locked   map[int64]bool
	dirty    map[int64]bool
	entries  []Entry
}

func (t *memoryTx) Account(id int64) (Account, error) {
	if !t.locked[id] {
		return Account{}, fmt.Errorf("account %d is not locked by this transaction", id)
	}
	account, ok := t.accounts[id]
	if !ok {
		return Account{}, apperr.AccountNotFound(id)
	}
	return account, nil
}

func (t *memoryTx) AdjustBalance(id, delta int64, at time.Time) (int64, error) {
	account, err := t.Account(id)
	if err != nil {
		return 0, err
	}
	balance := account.Balance + delta
	if balance < 0 {
		return 0, apperr.InsufficientFunds(fmt.Sprintf("user %d has insufficient balance", id))
	}
	account.Balance = balance
	account.UpdatedAt = at
	t.accounts[id] = account
	if t.dirty == nil {
		t.dirty = make(map[int64]bool)
	}
	t.dirty[id] = true
	return balance, nil
}

func (t *memoryTx) Append(entry Entry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func sortEntries(entries []Entry, descending bool) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			switch {
			case a.ID < b.ID:
				c = -1
			case a.ID > b.ID:
				c = 1
			}
		}
		if descending {
			return -c
		}
		return c
	})
}

func errAccountNumberTaken() error {
	return apperr.Conflict(apperr.CodeAccountNumberTaken, "rekening already registered", apperr.WithField("rekening"))
}

func lockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.LockTimeout(err)
	}
	return fmt.Errorf("acquire account locks: %w", err)
}
