package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix = "rl:mutations:"
	rateLimitWindow = time.Minute
)

// RateLimit caps mutating requests per client IP in fixed one-minute
// windows kept in Redis. Reads are never limited. It fails open when Redis
// is unavailable.
func RateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := rateLimitPrefix + c.IP()
		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.String("ip", c.IP()), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			if err := cache.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
				// A counter without a TTL would never reset; drop it.
				logger.Warn("rate limit window not set", slog.String("ip", c.IP()), slog.Any("error", err))
				cache.Del(ctx, key)
				return c.Next()
			}
		}
		if cnt > int64(maxPerMin) {
			retryAfter := rateLimitWindow
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retryAfter = ttl
			} else if err == nil {
				// The window was lost; start a fresh one so the client is not
				// blocked for good.
				if err := cache.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
					logger.Warn("rate limit window not set", slog.String("ip", c.IP()), slog.Any("error", err))
				}
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
