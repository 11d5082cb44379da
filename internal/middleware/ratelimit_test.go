package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/httpx"
	"github.com/dompet-app/dompet/internal/logging"
)

func newRateLimitedApp(t *testing.T, limit int) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger)})
	app.Use(RateLimit(cache, limit, logger))
	app.Get("/users", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/users", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	return app, mr
}

func statusOf(t *testing.T, app *fiber.App, method string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, "/users", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitMutations(t *testing.T) {
	app, mr := newRateLimitedApp(t, 2)

	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))
	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/users", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 429, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	require.Equal(t, apperr.CodeRateLimited, body.Code)

	require.Equal(t, 200, statusOf(t, app, fiber.MethodGet), "reads are not limited")

	mr.FastForward(time.Minute + time.Second)
	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost), "window resets")
}

func TestRateLimitDisabled(t *testing.T) {
	app, _ := newRateLimitedApp(t, 0)
	for i := 0; i < 5; i++ {
		require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	app, mr := newRateLimitedApp(t, 1)
	mr.Close()
	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))
	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))
}

func TestRateLimitRestoresLostWindow(t *testing.T) {
	app, mr := newRateLimitedApp(t, 2)
	key := rateLimitPrefix + "0.0.0.0"
	require.NoError(t, mr.Set(key, "5"))
	require.Zero(t, mr.TTL(key))

	require.Equal(t, 429, statusOf(t, app, fiber.MethodPost))
	require.Equal(t, rateLimitWindow, mr.TTL(key))

	mr.FastForward(rateLimitWindow + time.Second)
	require.Equal(t, 201, statusOf(t, app, fiber.MethodPost))
}
