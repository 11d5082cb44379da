package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/payments"
)

// RegisterPaymentRoutes wires balance-changing endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/users/:id/topup", h.TopUp)
	r.Post("/users/:id/transfer", h.Transfer)
}
