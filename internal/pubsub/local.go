package pubsub

import (
	"context"
	"sync"
)

type localSubscription struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// deliver reports false when the message was dropped
func (s *localSubscription) deliver(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *localSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LocalPubSub delivers messages inside the current process only
type LocalPubSub struct {
	mu     sync.RWMutex
	topics map[string]map[*localSubscription]struct{}
}

// NewLocalPubSub creates an in-process pub/sub
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{topics: make(map[string]map[*localSubscription]struct{})}
}

// Publish delivers payload to the current subscribers of channel
func (l *LocalPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	subs := make([]*localSubscription, 0, len(l.topics[channel]))
	for sub := range l.topics[channel] {
		subs = append(subs, sub)
	}
	l.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe registers a subscriber that lives until ctx is done
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &localSubscription{ch: make(chan Message, subscriberBuffer)}

	l.mu.Lock()
	if l.topics[channel] == nil {
		l.topics[channel] = make(map[*localSubscription]struct{})
	}
	l.topics[channel][sub] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.remove(channel, sub)
	}()

	return sub.ch, nil
}

// Subscribers returns the number of live subscribers of channel
func (l *LocalPubSub) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.topics[channel])
}

func (l *LocalPubSub) remove(channel string, sub *localSubscription) {
	l.mu.Lock()
	if subs, ok := l.topics[channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(l.topics, channel)
		}
	}
	l.mu.Unlock()

	sub.close()
}

// Close ends every subscription
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	topics := l.topics
	l.topics = make(map[string]map[*localSubscription]struct{})
	l.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.close()
		}
	}
	return nil
}
