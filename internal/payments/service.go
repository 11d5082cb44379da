package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dompet-app/dompet/internal/ledger"
	"github.com/dompet-app/dompet/internal/notification"
)

// Ledger is the write side payments are posted through.
type Ledger interface {
	TopUp(ctx context.Context, accountID, amount int64) (ledger.Entry, error)
	Transfer(ctx context.Context, fromID, toID, amount int64) (ledger.Entry, error)
}

// Service posts top-ups and transfers and notifies the affected accounts.
type Service struct {
	ledger   Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(ledger Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{ledger: ledger, notifier: notifier, logger: logger}
}

// TopUpResult describes a committed top-up.
type TopUpResult struct {
	Entry   ledger.Entry
	Balance int64
}

// TopUp credits an account.
func (s *Service) TopUp(ctx context.Context, accountID, amount int64) (TopUpResult, error) {
	entry, err := s.ledger.TopUp(ctx, accountID, amount)
	if err != nil {
		return TopUpResult{}, err
	}

	s.notify(ctx, notification.Message{
		Kind:      notification.KindTopUp,
		AccountID: accountID,
		EntryID:   entry.ID,
		Amount:    amount,
		Balance:   entry.ToBalanceAfter,
		Body:      fmt.Sprintf("Your balance was topped up by %d", amount),
	})
	return TopUpResult{Entry: entry, Balance: entry.ToBalanceAfter}, nil
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	FromAccountID int64
	ToAccountID   int64
	Amount        int64
}

// TransferResult describes the ledger outcome of a transfer.
type TransferResult struct {
	Entry       ledger.Entry
	FromBalance int64
	ToBalance   int64
}

// Transfer moves funds between two accounts.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	entry, err := s.ledger.Transfer(ctx, input.FromAccountID, input.ToAccountID, input.Amount)
	if err != nil {
		return TransferResult{}, err
	}

	s.notify(ctx, notification.Message{
		Kind:      notification.KindTransferSent,
		AccountID: input.FromAccountID,
		EntryID:   entry.ID,
		Amount:    input.Amount,
		Balance:   entry.FromBalanceAfter,
		Body:      fmt.Sprintf("You sent %d to user %d", input.Amount, input.ToAccountID),
	})
	s.notify(ctx, notification.Message{
		Kind:      notification.KindTransferReceived,
		AccountID: input.ToAccountID,
		EntryID:   entry.ID,
		Amount:    input.Amount,
		Balance:   entry.ToBalanceAfter,
		Body:      fmt.Sprintf("You received %d from user %d", input.Amount, input.FromAccountID),
	})

	return TransferResult{
		Entry:       entry,
		FromBalance: entry.FromBalanceAfter,
		ToBalance:   entry.ToBalanceAfter,
	}, nil
}

// notify never fails the payment; the entry is already committed.
func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.Int64("account_id", msg.AccountID),
			slog.Int64("entry_id", msg.EntryID),
			slog.Any("error", err),
		)
	}
}
