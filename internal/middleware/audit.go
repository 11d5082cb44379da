package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/httpx"
)

// Audit emits structured logs for each request/response lifecycle event.
// Errors are not rendered yet at this point, so their status is derived the
// same way the error handler derives it.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		duration := time.Since(start)
		requestID, _ := c.Locals(requestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("duration", duration),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if err != nil {
			var body httpx.ErrorBody
			status, body = httpx.Render(err)
			attrs = append(attrs, slog.Int("status", status), slog.String("code", body.Code), slog.Any("error", err))
			if status >= fiber.StatusInternalServerError {
				logger.Error("request completed", attrs...)
			} else {
				logger.Info("request completed", attrs...)
			}
			return err
		}

		attrs = append(attrs, slog.Int("status", status))
		logger.Info("request completed", attrs...)
		return nil
	}
}
