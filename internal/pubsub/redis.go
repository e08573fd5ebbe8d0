package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DialRedis parses a redis:// URL and verifies the server answers.
// Works with any Redis-compatible server (Redis, Valkey, Dragonfly).
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client, nil
}

// RedisPubSub shares events between instances through Redis PUBLISH/SUBSCRIBE.
// Messages are fire-and-forget; nothing is persisted.
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisPubSub wraps an established client. Close does not close the client.
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{client: client, ctx: ctx, cancel: cancel}
}

// Publish sends payload to channel on the server
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := r.client.Subscribe(r.ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", channel, err)
	}

	out := make(chan Message, subscriberBuffer)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					log.Warn().Str("channel", channel).Msg("Subscriber queue full, dropping event")
				}
			}
		}
	}()

	return out, nil
}

// Close ends every subscription
func (r *RedisPubSub) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}
