// Package pubsub fans generation events out to every listener of a session,
// including listeners attached to other DebAI instances.
package pubsub

import (
	"context"
)

// Message is one payload delivered on a channel
type Message struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

// PubSub is implemented by the event fan-out backends.
// Implementations are safe for concurrent use.
type PubSub interface {
	// Publish delivers payload to every current subscriber of channel.
	// Slow subscribers drop messages rather than block the publisher.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a stream of messages for channel. The stream is
	// closed when ctx is cancelled or the backend is closed.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	Close() error
}

const sessionChannelPrefix = "debai:session:"

// SessionChannel names the channel carrying the events of one session
func SessionChannel(sessionID string) string {
	return sessionChannelPrefix + sessionID
}

// subscriberBuffer is the per-subscriber queue length
const subscriberBuffer = 256
