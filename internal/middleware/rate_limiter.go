package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/debai-app/debai/internal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Store   ratelimit.Store
	Max     int64                   // requests allowed per window
	Window  time.Duration           // window length
	KeyFunc func(*fiber.Ctx) string // defaults to the client IP
	Name    string                  // limiter label for metrics and key prefix
	// OnLimit is called for every rejected request
	OnLimit func(name string)
	// SkipPaths are never counted
	SkipPaths []string
}

// NewRateLimiter returns a fixed-window limiter backed by cfg.Store.
// A failing store lets requests through.
func NewRateLimiter(cfg RateLimiterConfig) fiber.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	message := fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.", cfg.Max, cfg.Window)

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		key := cfg.Name + ":" + cfg.KeyFunc(c)
		res, err := ratelimit.Check(ctx, cfg.Store, key, cfg.Max, cfg.Window)
		if err != nil {
			log.Warn().Err(err).Str("limiter", cfg.Name).Msg("Rate limit store unavailable, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			if cfg.OnLimit != nil {
				cfg.OnLimit(cfg.Name)
			}
			retryAfter := int(res.RetryAfter().Seconds())
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"message":     message,
				"code":        fiber.StatusTooManyRequests,
				"retry_after": retryAfter,
			})
		}

		return c.Next()
	}
}
