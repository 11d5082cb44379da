package reporting

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/httpx"
)

// Handler exposes the report endpoints under /transactions.
type Handler struct {
	service *Service
	binder  *httpx.Binder
}

// NewHandler builds a reporting HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		binder: httpx.NewBinder(map[string]httpx.FieldRule{
			"order": {Code: apperr.CodeInvalidRequest, Message: "order must be asc or desc"},
		}),
	}
}

type historyQuery struct {
	UserID    string `query:"userId" json:"userId"`
	Date      string `query:"date" json:"date"`
	StartDate string `query:"startDate" json:"startDate"`
	EndDate   string `query:"endDate" json:"endDate"`
	Order     string `query:"order" json:"order" validate:"omitempty,oneof=asc desc"`
}

func (h *Handler) parseQuery(c *fiber.Ctx) (historyQuery, error) {
	var q historyQuery
	if err := c.QueryParser(&q); err != nil {
		return historyQuery{}, apperr.Validation(apperr.CodeInvalidRequest, "invalid query string", apperr.WithErr(err))
	}
	q.Order = strings.ToLower(q.Order)
	if err := h.binder.Validate(&q); err != nil {
		return historyQuery{}, err
	}
	return q, nil
}

func (q historyQuery) accountID(required bool) (int64, error) {
	if q.UserID == "" {
		if required {
			return 0, apperr.Validation(apperr.CodeInvalidRequest, "userId is required", apperr.WithField("userId"))
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(q.UserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.CodeInvalidRequest, "userId must be a positive integer", apperr.WithField("userId"))
	}
	return id, nil
}

func (h *Handler) filter(q historyQuery, requireRange bool) (Filter, error) {
	if requireRange {
		if q.StartDate == "" {
			return Filter{}, errDateRequired("startDate")
		}
		if q.EndDate == "" {
			return Filter{}, errDateRequired("endDate")
		}
	}
	accountID, err := q.accountID(false)
	if err != nil {
		return Filter{}, err
	}
	r, err := ParseRange("startDate", q.StartDate, "endDate", q.EndDate, h.service.Location())
	if err != nil {
		return Filter{}, err
	}
	return Filter{AccountID: accountID, Range: r, Descending: q.Order == "desc"}, nil
}

// BalanceHistory handles GET /transactions/balance-history.
func (h *Handler) BalanceHistory(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	accountID, err := q.accountID(true)
	if err != nil {
		return err
	}
	day, err := ParseDay("date", q.Date, h.service.Location())
	if err != nil {
		return err
	}
	out, err := h.service.BalanceHistory(c.UserContext(), accountID, day, q.Order == "desc")
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(out)
}

// TopUps handles GET /transactions/topups.
func (h *Handler) TopUps(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	f, err := h.filter(q, false)
	if err != nil {
		return err
	}
	out, err := h.service.TopUpHistory(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Transfers handles GET /transactions/transfers.
func (h *Handler) Transfers(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	f, err := h.filter(q, false)
	if err != nil {
		return err
	}
	out, err := h.service.TransferHistory(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(out)
}

// ByDateRange handles GET /transactions/by-date-range.
func (h *Handler) ByDateRange(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	f, err := h.filter(q, true)
	if err != nil {
		return err
	}
	out, err := h.service.ByDateRange(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Reconciliation handles GET /transactions/reconciliation.
func (h *Handler) Reconciliation(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(report)
}

func errDateRequired(field string) error {
	return apperr.Validation(apperr.CodeInvalidDate, fmt.Sprintf("%s is required", field), apperr.WithField(field))
}
