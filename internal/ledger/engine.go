package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/dompet-app/dompet/internal/apperr"
)

// DefaultLockTimeout bounds how long an operation waits for account locks.
const DefaultLockTimeout = 5 * time.Second

// Engine is the only writer of balances and ledger entries.
type Engine struct {
	store       Store
	ids         *IDGenerator
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithClock overrides the wall clock used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an engine over store.
func NewEngine(store Store, ids *IDGenerator, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		ids:         ids,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TopUp credits amount to the account and records a TOPUP entry.
func (e *Engine) TopUp(ctx context.Context, accountID, amount int64) (Entry, error) {
	if err := validateAmount(amount); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := e.apply(ctx, []int64{accountID}, func(tx Tx) error {
		account, err := liveAccount(tx, accountID)
		if err != nil {
			return err
		}
		if account.Balance > math.MaxInt64-amount {
			return apperr.Validation(apperr.CodeInvalidAmount, "amount would overflow the balance", apperr.WithField("amount"))
		}

		at := e.commitTime(account)
		balance, err := tx.AdjustBalance(accountID, amount, at)
		if err != nil {
			return err
		}
		entry = Entry{
			ID:             e.ids.Next(),
			Type:           EntryTopUp,
			Amount:         amount,
			ToAccountID:    accountID,
			ToBalanceAfter: balance,
			CreatedAt:      at,
		}
		return tx.Append(entry)
	})
	if err != nil {
		e.logRejected("topup", err, slog.Int64("account_id", accountID), slog.Int64("amount", amount))
		return Entry{}, err
	}

	e.logger.Debug("topup committed",
		slog.Int64("entry_id", entry.ID),
		slog.Int64("account_id", accountID),
		slog.Int64("amount", amount),
		slog.Int64("balance_after", entry.ToBalanceAfter),
	)
	return entry, nil
}

// Transfer moves amount from one account to another and records a single
// TRANSFER entry carrying both post-commit balances.
func (e *Engine) Transfer(ctx context.Context, fromID, toID, amount int64) (Entry, error) {
	if err := validateAmount(amount); err != nil {
		return Entry{}, err
	}
	if fromID == toID {
		return Entry{}, apperr.Validation(apperr.CodeSelfTransfer, "cannot transfer to the same user", apperr.WithField("to_user_id"))
	}

	var entry Entry
	err := e.apply(ctx, []int64{fromID, toID}, func(tx Tx) error {
		from, err := liveAccount(tx, fromID)
		if err != nil {
			return err
		}
		to, err := liveAccount(tx, toID)
		if err != nil {
			return err
		}
		if from.Balance < amount {
			return apperr.InsufficientFunds(fmt.Sprintf("insufficient balance: available %d, requested %d", from.Balance, amount), apperr.WithField("amount"))
		}
		if to.Balance > math.MaxInt64-amount {
			return apperr.Validation(apperr.CodeInvalidAmount, "amount would overflow the recipient balance", apperr.WithField("amount"))
		}

		at := e.commitTime(from, to)
		fromBalance, err := tx.AdjustBalance(fromID, -amount, at)
		if err != nil {
			return err
		}
		toBalance, err := tx.AdjustBalance(toID, amount, at)
		if err != nil {
			return err
		}
		entry = Entry{
			ID:               e.ids.Next(),
			Type:             EntryTransfer,
			Amount:           amount,
			FromAccountID:    fromID,
			ToAccountID:      toID,
			FromBalanceAfter: fromBalance,
			ToBalanceAfter:   toBalance,
			CreatedAt:        at,
		}
		return tx.Append(entry)
	})
	if err != nil {
		e.logRejected("transfer", err,
			slog.Int64("from_account_id", fromID),
			slog.Int64("to_account_id", toID),
			slog.Int64("amount", amount),
		)
		return Entry{}, err
	}

	e.logger.Debug("transfer committed",
		slog.Int64("entry_id", entry.ID),
		slog.Int64("from_account_id", fromID),
		slog.Int64("to_account_id", toID),
		slog.Int64("amount", amount),
	)
	return entry, nil
}

func (e *Engine) apply(ctx context.Context, ids []int64, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	return e.store.Apply(ctx, ids, fn)
}

// commitTime never goes below the last update of any involved account, so
// entries stay ordered per account even if the wall clock steps back.
func (e *Engine) commitTime(accounts ...Account) time.Time {
	at := e.now().UTC().Truncate(time.Microsecond)
	for _, a := range accounts {
		if a.UpdatedAt.After(at) {
			at = a.UpdatedAt
		}
	}
	return at
}

func (e *Engine) logRejected(op string, err error, attrs ...any) {
	level := slog.LevelInfo
	code := apperr.CodeInternal
	if appErr, ok := apperr.As(err); ok {
		code = appErr.Code
		if appErr.Retryable {
			level = slog.LevelWarn
		}
	} else {
		level = slog.LevelError
	}
	attrs = append(attrs, slog.String("code", code), slog.Any("error", err))
	e.logger.Log(context.Background(), level, op+" rejected", attrs...)
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return apperr.Validation(apperr.CodeInvalidAmount, "amount must be greater than zero", apperr.WithField("amount"))
	}
	return nil
}

func liveAccount(tx Tx, id int64) (Account, error) {
	account, err := tx.Account(id)
	if err != nil {
		return Account{}, err
	}
	if account.Deleted() {
		return Account{}, apperr.AccountNotFound(id)
	}
	return account, nil
}

// IsRetryable reports whether err is a conflict the caller may retry as is.
func IsRetryable(err error) bool {
	var appErr *apperr.Error
	return errors.As(err, &appErr) && appErr.Retryable
}
