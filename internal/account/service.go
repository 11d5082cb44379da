package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/ledger"
)

const (
	maxFullNameLength      = 100
	minAccountNumberDigits = 10
	maxAccountNumberDigits = 16
	maxBankFieldLength     = 64
)

// Service exposes account registration and lookup. Balances are read only
// here; the ledger engine is the sole writer.
type Service struct {
	store  ledger.AccountStore
	now    func() time.Time
	logger *slog.Logger
}

// NewService builds an account service instance.
func NewService(store ledger.AccountStore, logger *slog.Logger) *Service {
	return &Service{store: store, now: time.Now, logger: logger}
}

// CreateInput captures data required to register an account.
type CreateInput struct {
	FullName      string
	AccountNumber string
	BankName      string
	BankCode      string
}

// Create registers an account with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	input.FullName = strings.TrimSpace(input.FullName)
	input.AccountNumber = strings.TrimSpace(input.AccountNumber)
	input.BankName = strings.TrimSpace(input.BankName)
	input.BankCode = strings.TrimSpace(input.BankCode)
	if err := validateCreate(input); err != nil {
		return ledger.Account{}, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	account, err := s.store.CreateAccount(ctx, ledger.Account{
		FullName:      input.FullName,
		AccountNumber: input.AccountNumber,
		BankName:      input.BankName,
		BankCode:      input.BankCode,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("account created", slog.Int64("account_id", account.ID))
	return account, nil
}

// Get returns a live account. Deleted accounts are reported as not found.
func (s *Service) Get(ctx context.Context, id int64) (ledger.Account, error) {
	account, err := s.store.Account(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if account.Deleted() {
		return ledger.Account{}, apperr.AccountNotFound(id)
	}
	return account, nil
}

// List returns live accounts in creation order.
func (s *Service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.store.Accounts(ctx, false)
}

// Delete tombstones the account. Its ledger history stays queryable and
// its account number stays reserved.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteAccount(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("account deleted", slog.Int64("account_id", id))
	return nil
}

func validateCreate(input CreateInput) error {
	if input.FullName == "" {
		return apperr.Validation(apperr.CodeInvalidFullName, "full_name is required", apperr.WithField("full_name"))
	}
	if utf8.RuneCountInString(input.FullName) > maxFullNameLength {
		return apperr.Validation(apperr.CodeInvalidFullName,
			fmt.Sprintf("full_name must be at most %d characters", maxFullNameLength), apperr.WithField("full_name"))
	}
	if !validAccountNumber(input.AccountNumber) {
		return errInvalidAccountNumber()
	}
	if len(input.BankName) > maxBankFieldLength || len(input.BankCode) > maxBankFieldLength {
		return apperr.Validation(apperr.CodeInvalidRequest,
			fmt.Sprintf("bank_name and bank_code must be at most %d characters", maxBankFieldLength))
	}
	return nil
}

func validAccountNumber(number string) bool {
	if len(number) < minAccountNumberDigits || len(number) > maxAccountNumberDigits {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}

func errInvalidAccountNumber() error {
	return apperr.Validation(apperr.CodeInvalidAccountNumber,
		fmt.Sprintf("rekening must be %d to %d digits", minAccountNumberDigits, maxAccountNumberDigits),
		apperr.WithField("rekening"))
}
