package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing input. The client must fix the request.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to an unknown or deleted account.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate account number or a lock wait that timed out.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientFunds marks a debit larger than the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Stable machine-readable error codes returned to clients.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidFullName      = "invalid_full_name"
	CodeInvalidAccountNumber = "invalid_account_number"
	CodeInvalidAmount        = "invalid_amount"
	CodeSelfTransfer         = "self_transfer"
	CodeInvalidDate          = "invalid_date"
	CodeInvalidDateRange     = "invalid_date_range"
	CodeAccountNotFound      = "account_not_found"
	CodeAccountNumberTaken   = "account_number_taken"
	CodeLockTimeout          = "lock_timeout"
	CodeInsufficientFunds    = "insufficient_funds"
	CodeDuplicateRequest     = "duplicate_request"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal_error"
)

// Error is a classified application error. Kind is one of the package
// sentinels and is what errors.Is matches against.
type Error struct {
	Kind      error
	Code      string
	Field     string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option customises an Error at construction.
type Option func(*Error)

// WithField names the request field the error refers to.
func WithField(field string) Option {
	return func(e *Error) { e.Field = field }
}

// WithErr attaches the underlying cause.
func WithErr(err error) Option {
	return func(e *Error) { e.Err = err }
}

func newError(kind error, code, message string, opts ...Option) *Error {
	e := &Error{Kind: kind, Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validation builds an ErrValidation error.
func Validation(code, message string, opts ...Option) *Error {
	return newError(ErrValidation, code, message, opts...)
}

// NotFound builds an ErrNotFound error.
func NotFound(code, message string, opts ...Option) *Error {
	return newError(ErrNotFound, code, message, opts...)
}

// Conflict builds a non-retryable ErrConflict error.
func Conflict(code, message string, opts ...Option) *Error {
	return newError(ErrConflict, code, message, opts...)
}

// LockTimeout builds the retryable conflict returned when account locks
// could not be acquired in time.
func LockTimeout(err error) *Error {
	e := newError(ErrConflict, CodeLockTimeout, "account is busy, retry the request", WithErr(err))
	e.Retryable = true
	return e
}

// InsufficientFunds builds an ErrInsufficientFunds error.
func InsufficientFunds(message string, opts ...Option) *Error {
	return newError(ErrInsufficientFunds, CodeInsufficientFunds, message, opts...)
}

// AccountNotFound is the common not-found error for account ids.
func AccountNotFound(id int64) *Error {
	return NotFound(CodeAccountNotFound, fmt.Sprintf("user %d not found", id))
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status maps an error to the HTTP status it is surfaced with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
