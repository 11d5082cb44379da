package httpx

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/logging"
)

type topupRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Note   string `json:"note" validate:"max=5"`
}

func newBindApp(t *testing.T) *fiber.App {
	t.Helper()
	binder := NewBinder(map[string]FieldRule{
		"amount": {Code: apperr.CodeInvalidAmount, Message: "amount must be greater than zero"},
	})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Post("/topup/:id", func(c *fiber.Ctx) error {
		id, err := PathID(c, "id")
		if err != nil {
			return err
		}
		var req topupRequest
		if err := binder.Bind(c, &req); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": id, "amount": req.Amount})
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection reset")
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, ErrorBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out ErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestBind(t *testing.T) {
	app := newBindApp(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
		field  string
	}{
		{"ok", "/topup/1", `{"amount":100}`, 200, "", ""},
		{"zero amount", "/topup/1", `{"amount":0}`, 400, apperr.CodeInvalidAmount, "amount"},
		{"missing amount", "/topup/1", `{}`, 400, apperr.CodeInvalidAmount, "amount"},
		{"fractional amount", "/topup/1", `{"amount":10.5}`, 400, apperr.CodeInvalidAmount, "amount"},
		{"string amount", "/topup/1", `{"amount":"10"}`, 400, apperr.CodeInvalidAmount, "amount"},
		{"unknown field", "/topup/1", `{"amount":1,"currency":"IDR"}`, 400, apperr.CodeInvalidRequest, "currency"},
		{"empty body", "/topup/1", ``, 400, apperr.CodeInvalidRequest, ""},
		{"broken json", "/topup/1", `{"amount":`, 400, apperr.CodeInvalidRequest, ""},
		{"trailing data", "/topup/1", `{"amount":1}{}`, 400, apperr.CodeInvalidRequest, ""},
		{"rule without code", "/topup/1", `{"amount":1,"note":"too long"}`, 400, apperr.CodeInvalidRequest, "note"},
		{"bad id", "/topup/abc", `{"amount":1}`, 400, apperr.CodeInvalidRequest, "id"},
		{"negative id", "/topup/-3", `{"amount":1}`, 400, apperr.CodeInvalidRequest, "id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, app, fiber.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.status, status)
			if tc.code != "" {
				require.Equal(t, tc.code, body.Code)
				require.NotEmpty(t, body.Message)
			}
			require.Equal(t, tc.field, body.Field)
		})
	}
}

func TestRenderMasksInternalErrors(t *testing.T) {
	app := newBindApp(t)
	status, body := doJSON(t, app, fiber.MethodGet, "/boom", "")
	require.Equal(t, 500, status)
	require.Equal(t, apperr.CodeInternal, body.Code)
	require.NotContains(t, body.Message, "pq")
}

func TestRenderKinds(t *testing.T) {
	status, body := Render(apperr.LockTimeout(errors.New("deadline")))
	require.Equal(t, 409, status)
	require.True(t, body.Retryable)
	require.Equal(t, apperr.CodeLockTimeout, body.Code)

	status, body = Render(apperr.InsufficientFunds("insufficient balance"))
	require.Equal(t, 422, status)
	require.False(t, body.Retryable)

	status, body = Render(fiber.ErrNotFound)
	require.Equal(t, 404, status)
	require.Equal(t, "route_not_found", body.Code)
}
