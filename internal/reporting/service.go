package reporting

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dompet-app/dompet/internal/ledger"
)

// Store is the read side the reports are built from.
type Store interface {
	ledger.Log
	Account(ctx context.Context, id int64) (ledger.Account, error)
	Accounts(ctx context.Context, includeDeleted bool) ([]ledger.Account, error)
	LookupAccounts(ctx context.Context, ids []int64) (map[int64]ledger.Account, error)
}

// Filter narrows a history report. AccountID zero means every account.
type Filter struct {
	AccountID  int64
	Range      Range
	Descending bool
}

func (f Filter) entries(kind ledger.EntryType) ledger.EntryFilter {
	return ledger.EntryFilter{
		AccountID:  f.AccountID,
		Type:       kind,
		From:       f.Range.From,
		To:         f.Range.To,
		Descending: f.Descending,
	}
}

// Service builds read-only projections over the transaction log. It never
// takes account locks.
type Service struct {
	store    Store
	location *time.Location
	now      func() time.Time
}

// NewService builds a reporting service. loc is the calendar used for
// date-only filters.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, location: loc, now: time.Now}
}

// Location returns the calendar used to interpret date-only filters.
func (s *Service) Location() *time.Location {
	return s.location
}

// BalanceHistory lists every entry touching the account, with balance_after
// resolved for that account. Deleted accounts keep their history.
func (s *Service) BalanceHistory(ctx context.Context, accountID int64, day Range, descending bool) ([]Transaction, error) {
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.transactions(ctx, Filter{AccountID: accountID, Range: day, Descending: descending})
}

// ByDateRange lists entries of both types in the range, optionally scoped
// to one account.
func (s *Service) ByDateRange(ctx context.Context, filter Filter) ([]Transaction, error) {
	return s.transactions(ctx, filter)
}

// TopUpHistory lists TOPUP entries.
func (s *Service) TopUpHistory(ctx context.Context, filter Filter) ([]TopUp, error) {
	entries, err := s.store.Entries(ctx, filter.entries(ledger.EntryTopUp))
	if err != nil {
		return nil, err
	}
	parties, err := s.parties(ctx, entries)
	if err != nil {
		return nil, err
	}
	out := make([]TopUp, 0, len(entries))
	for _, e := range entries {
		out = append(out, TopUp{
			ID:           e.ID,
			Amount:       e.Amount,
			BalanceAfter: e.ToBalanceAfter,
			CreatedAt:    e.CreatedAt,
			User:         parties.get(e.ToAccountID),
		})
	}
	return out, nil
}

// TransferHistory lists TRANSFER entries where the account is either side.
func (s *Service) TransferHistory(ctx context.Context, filter Filter) ([]Transfer, error) {
	entries, err := s.store.Entries(ctx, filter.entries(ledger.EntryTransfer))
	if err != nil {
		return nil, err
	}
	parties, err := s.parties(ctx, entries)
	if err != nil {
		return nil, err
	}
	out := make([]Transfer, 0, len(entries))
	for _, e := range entries {
		out = append(out, Transfer{
			ID:               e.ID,
			Amount:           e.Amount,
			FromBalanceAfter: e.FromBalanceAfter,
			ToBalanceAfter:   e.ToBalanceAfter,
			CreatedAt:        e.CreatedAt,
			FromUser:         parties.get(e.FromAccountID),
			ToUser:           parties.get(e.ToAccountID),
		})
	}
	return out, nil
}

// Present renders a single committed entry, scoped to scopeID.
func (s *Service) Present(ctx context.Context, entry ledger.Entry, scopeID int64) (Transaction, error) {
	parties, err := s.parties(ctx, []ledger.Entry{entry})
	if err != nil {
		return Transaction{}, err
	}
	return newTransaction(entry, scopeID, parties), nil
}

// NewTransaction renders entry for scopeID without party details.
func NewTransaction(entry ledger.Entry, scopeID int64) Transaction {
	return newTransaction(entry, scopeID, nil)
}

func (s *Service) transactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	entries, err := s.store.Entries(ctx, filter.entries(""))
	if err != nil {
		return nil, err
	}
	parties, err := s.parties(ctx, entries)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		out = append(out, newTransaction(e, filter.AccountID, parties))
	}
	return out, nil
}

type partySet map[int64]ledger.Account

func (p partySet) get(id int64) Party {
	a, ok := p[id]
	if !ok {
		return Party{ID: id}
	}
	return Party{ID: a.ID, FullName: a.FullName, Rekening: a.AccountNumber}
}

func (p partySet) ref(id int64) *Party {
	if id == 0 {
		return nil
	}
	party := p.get(id)
	return &party
}

func (s *Service) parties(ctx context.Context, entries []ledger.Entry) (partySet, error) {
	ids := make([]int64, 0, len(entries)*2)
	for _, e := range entries {
		if e.FromAccountID != 0 {
			ids = append(ids, e.FromAccountID)
		}
		ids = append(ids, e.ToAccountID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	accounts, err := s.store.LookupAccounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup transaction parties: %w", err)
	}
	return partySet(accounts), nil
}

// newTransaction resolves balance_after for scopeID. Unscoped transfers
// report the sender's balance.
func newTransaction(e ledger.Entry, scopeID int64, parties partySet) Transaction {
	balance, ok := e.BalanceAfter(scopeID)
	if !ok {
		if e.Type == ledger.EntryTransfer {
			balance = e.FromBalanceAfter
		} else {
			balance = e.ToBalanceAfter
		}
	}
	t := Transaction{
		ID:           e.ID,
		Type:         string(e.Type),
		Amount:       e.Amount,
		BalanceAfter: balance,
		CreatedAt:    e.CreatedAt,
		ToUserID:     e.ToAccountID,
		FromUser:     parties.ref(e.FromAccountID),
		ToUser:       parties.ref(e.ToAccountID),
	}
	if e.FromAccountID != 0 {
		from := e.FromAccountID
		t.FromUserID = &from
	}
	return t
}
