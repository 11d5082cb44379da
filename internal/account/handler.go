package account

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/httpx"
	"github.com/dompet-app/dompet/internal/ledger"
)

// Handler exposes account HTTP endpoints under /users.
type Handler struct {
	service *Service
	binder  *httpx.Binder
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	accountNumber := httpx.FieldRule{Code: apperr.CodeInvalidAccountNumber, Message: "rekening must be 10 to 16 digits"}
	return &Handler{
		service: service,
		binder: httpx.NewBinder(map[string]httpx.FieldRule{
			"full_name":      {Code: apperr.CodeInvalidFullName},
			"rekening":       accountNumber,
			"account_number": accountNumber,
		}),
	}
}

type createRequest struct {
	FullName      string `json:"full_name" validate:"required,max=100"`
	Rekening      string `json:"rekening" validate:"omitempty,number,min=10,max=16"`
	AccountNumber string `json:"account_number" validate:"omitempty,number,min=10,max=16"`
	BankName      string `json:"bank_name" validate:"max=64"`
	BankCode      string `json:"bank_code" validate:"max=64"`
}

// Response is the JSON representation of an account.
type Response struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Rekening  string    `json:"rekening"`
	Balance   int64     `json:"balance"`
	BankName  string    `json:"bank_name,omitempty"`
	BankCode  string    `json:"bank_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewResponse converts a ledger account to its JSON representation.
func NewResponse(a ledger.Account) Response {
	return Response{
		ID:        a.ID,
		FullName:  a.FullName,
		Rekening:  a.AccountNumber,
		Balance:   a.Balance,
		BankName:  a.BankName,
		BankCode:  a.BankCode,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// List returns all live accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]Response, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, NewResponse(a))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Get returns one live account.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return err
	}
	account, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(NewResponse(account))
}

// Create registers an account. The account number may be sent as either
// rekening or account_number.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := h.binder.Bind(c, &req); err != nil {
		return err
	}

	number := req.Rekening
	switch {
	case number == "":
		number = req.AccountNumber
	case req.AccountNumber != "" && req.AccountNumber != number:
		return apperr.Validation(apperr.CodeInvalidAccountNumber,
			"rekening and account_number must match", apperr.WithField("rekening"))
	}
	if number == "" {
		return apperr.Validation(apperr.CodeInvalidAccountNumber, "rekening is required", apperr.WithField("rekening"))
	}

	account, err := h.service.Create(c.UserContext(), CreateInput{
		FullName:      req.FullName,
		AccountNumber: number,
		BankName:      req.BankName,
		BankCode:      req.BankCode,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(NewResponse(account))
}

// Delete tombstones an account.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
