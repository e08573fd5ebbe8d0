package ratelimit

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStore keeps counters in a gofiber memory storage.
// Counters are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	storage *memory.Storage
	now     func() time.Time
}

// NewMemoryStore creates a store whose expired entries are collected every gcInterval
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	return &MemoryStore{
		storage: memory.New(memory.Config{GCInterval: gcInterval}),
		now:     time.Now,
	}
}

// Get returns the live count for key
func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, resetAt, err := s.load(key)
	if err != nil || count == 0 {
		return 0, time.Time{}, err
	}
	return count, resetAt, nil
}

// Increment counts one hit for key
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, resetAt, err := s.load(key)
	if err != nil {
		return 0, time.Time{}, err
	}

	now := s.now()
	if count == 0 {
		// stored entries carry no monotonic reading; neither does a fresh window
		resetAt = now.Add(window).Round(0)
	}
	count++

	// the storage expiry only garbage-collects; load enforces resetAt itself
	if err := s.storage.Set(key, encodeEntry(count, resetAt), resetAt.Sub(now)+time.Second); err != nil {
		return 0, time.Time{}, err
	}
	return count, resetAt, nil
}

// Reset forgets key
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	return s.storage.Delete(key)
}

// Close stops the storage garbage collector
func (s *MemoryStore) Close() error {
	return s.storage.Close()
}

// load returns zero when key is absent or its window has passed
func (s *MemoryStore) load(key string) (int64, time.Time, error) {
	raw, err := s.storage.Get(key)
	if err != nil {
		return 0, time.Time{}, err
	}
	count, resetAt, ok := decodeEntry(raw)
	if !ok || !s.now().Before(resetAt) {
		return 0, time.Time{}, nil
	}
	return count, resetAt, nil
}

func encodeEntry(count int64, resetAt time.Time) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(count))
	binary.BigEndian.PutUint64(buf[8:], uint64(resetAt.UnixNano()))
	return buf
}

func decodeEntry(data []byte) (int64, time.Time, bool) {
	if len(data) != 16 {
		return 0, time.Time{}, false
	}
	count := int64(binary.BigEndian.Uint64(data[:8]))
	resetAt := time.Unix(0, int64(binary.BigEndian.Uint64(data[8:])))
	return count, resetAt, true
}
