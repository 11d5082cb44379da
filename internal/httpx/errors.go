package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorHandler renders handler errors as ErrorBody. Unclassified errors are
// logged and surfaced as a masked 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := Render(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}

// Render maps err to a status code and response body.
func Render(err error) (int, ErrorBody) {
	if appErr, ok := apperr.As(err); ok {
		status := apperr.Status(appErr)
		if status >= http.StatusInternalServerError {
			return status, internalBody()
		}
		return status, ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Field:     appErr.Field,
			Retryable: appErr.Retryable,
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		if fiberErr.Code >= http.StatusInternalServerError {
			return fiberErr.Code, internalBody()
		}
		return fiberErr.Code, ErrorBody{Code: fiberCode(fiberErr.Code), Message: fiberErr.Message}
	}

	return http.StatusInternalServerError, internalBody()
}

func internalBody() ErrorBody {
	return ErrorBody{Code: apperr.CodeInternal, Message: "internal server error"}
}

func fiberCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "route_not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "body_too_large"
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	case http.StatusConflict:
		return apperr.CodeDuplicateRequest
	default:
		return apperr.CodeInvalidRequest
	}
}
