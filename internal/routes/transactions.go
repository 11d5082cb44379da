package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/reporting"
)

// RegisterTransactionRoutes wires the read-only reporting endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *reporting.Handler) {
	tx := r.Group("/transactions")
	tx.Get("/balance-history", h.BalanceHistory)
	tx.Get("/topups", h.TopUps)
	tx.Get("/transfers", h.Transfers)
	tx.Get("/by-date-range", h.ByDateRange)
	tx.Get("/reconciliation", h.Reconciliation)
}
