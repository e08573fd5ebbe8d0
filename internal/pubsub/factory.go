package pubsub

import (
	"fmt"

	"github.com/debai-app/debai/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewPubSub builds the configured backend.
// client is required for the "redis" backend and ignored otherwise.
func NewPubSub(cfg config.PubSubConfig, client *redis.Client) (PubSub, error) {
	switch cfg.Backend {
	case "local", "":
		log.Info().Msg("Using local pub/sub (single instance mode)")
		return NewLocalPubSub(), nil

	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis client is required for redis pub/sub backend")
		}
		log.Info().Msg("Using Redis pub/sub (multi-instance mode)")
		return NewRedisPubSub(client), nil

	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
