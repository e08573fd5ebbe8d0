package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("backend down")
}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("backend down")
}

func (failingStore) Reset(context.Context, string) error { return nil }
func (failingStore) Close() error                       { return nil }

func TestCheck(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	t.Run("counts down remaining", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			res, err := Check(ctx, store, "a", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 3-i, res.Remaining)
			assert.Equal(t, int64(3), res.Limit)
		}
	})

	t.Run("rejects past the limit", func(t *testing.T) {
		res, err := Check(ctx, store, "a", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.WithinDuration(t, clock.Now().Add(time.Minute), res.ResetAt, 0)
	})

	t.Run("allows again in the next window", func(t *testing.T) {
		clock.Advance(time.Minute)
		res, err := Check(ctx, store, "a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(2), res.Remaining)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		_, err := Check(ctx, failingStore{}, "a", 3, time.Minute)
		require.Error(t, err)
	})
}

func TestResult_RetryAfter(t *testing.T) {
	assert.Equal(t, time.Second, (&Result{ResetAt: time.Now()}).RetryAfter())
	assert.Equal(t, 30*time.Second, (&Result{ResetAt: time.Now().Add(30*time.Second + 100*time.Millisecond)}).RetryAfter())
}
