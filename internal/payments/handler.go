package payments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/httpx"
	"github.com/dompet-app/dompet/internal/ledger"
	"github.com/dompet-app/dompet/internal/reporting"
)

// Presenter renders a committed entry from one account's point of view.
type Presenter interface {
	Present(ctx context.Context, entry ledger.Entry, scopeID int64) (reporting.Transaction, error)
}

// Handler exposes payment endpoints.
type Handler struct {
	service   *Service
	presenter Presenter
	binder    *httpx.Binder
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, presenter Presenter) *Handler {
	return &Handler{
		service:   service,
		presenter: presenter,
		binder: httpx.NewBinder(map[string]httpx.FieldRule{
			"amount":     {Code: apperr.CodeInvalidAmount, Message: "amount must be greater than zero"},
			"to_user_id": {Code: apperr.CodeInvalidRequest, Message: "to_user_id must be a positive integer"},
		}),
	}
}

type topUpRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type transferRequest struct {
	ToUserID int64 `json:"to_user_id" validate:"gt=0"`
	Amount   int64 `json:"amount" validate:"gt=0"`
}

type topUpResponse struct {
	UserID      int64                 `json:"user_id"`
	Balance     int64                 `json:"balance"`
	Transaction reporting.Transaction `json:"transaction"`
}

type transferResponse struct {
	Transaction reporting.Transaction `json:"transaction"`
	FromBalance int64                 `json:"from_balance"`
	ToBalance   int64                 `json:"to_balance"`
}

// TopUp handles POST /users/:id/topup.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	accountID, err := httpx.PathID(c, "id")
	if err != nil {
		return err
	}
	var req topUpRequest
	if err := h.binder.Bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.TopUp(c.UserContext(), accountID, req.Amount)
	if err != nil {
		return err
	}
	tx := h.present(c.UserContext(), res.Entry, accountID)
	return c.Status(http.StatusOK).JSON(topUpResponse{UserID: accountID, Balance: res.Balance, Transaction: tx})
}

// Transfer handles POST /users/:id/transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	fromID, err := httpx.PathID(c, "id")
	if err != nil {
		return err
	}
	var req transferRequest
	if err := h.binder.Bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromAccountID: fromID,
		ToAccountID:   req.ToUserID,
		Amount:        req.Amount,
	})
	if err != nil {
		return err
	}
	tx := h.present(c.UserContext(), res.Entry, fromID)
	return c.Status(http.StatusOK).JSON(transferResponse{Transaction: tx, FromBalance: res.FromBalance, ToBalance: res.ToBalance})
}

// present never fails: the entry is already committed, so a failed party
// lookup only drops the user details from the response.
func (h *Handler) present(ctx context.Context, entry ledger.Entry, scopeID int64) reporting.Transaction {
	tx, err := h.presenter.Present(ctx, entry, scopeID)
	if err != nil {
		h.service.logger.WarnContext(ctx, "present committed entry",
			slog.Int64("entry_id", entry.ID),
			slog.Any("error", err),
		)
		return reporting.NewTransaction(entry, scopeID)
	}
	return tx
}
