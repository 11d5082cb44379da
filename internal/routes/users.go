package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/account"
)

// RegisterUserRoutes wires account endpoints.
func RegisterUserRoutes(r fiber.Router, h *account.Handler) {
	r.Get("/users", h.List)
	r.Post("/users", h.Create)
	r.Get("/users/:id", h.Get)
	r.Delete("/users/:id", h.Delete)
}
