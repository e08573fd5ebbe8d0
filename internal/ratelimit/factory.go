package ratelimit

import (
	"fmt"
	"time"

	"github.com/debai-app/debai/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewStore builds the configured counter store.
// client is required for the "redis" backend and ignored otherwise.
func NewStore(cfg config.RateLimitConfig, client *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		log.Info().Msg("Using in-memory rate limit store (single instance mode)")
		return NewMemoryStore(10 * time.Minute), nil

	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis client is required for redis rate limit backend")
		}
		log.Info().Msg("Using Redis rate limit store (multi-instance mode)")
		return NewRedisStore(client), nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: memory, redis)", cfg.Backend)
	}
}
