package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestInMemorySlidingWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewInMemory().WithClock(clock.now)
	ctx := context.Background()

	for i := range 3 {
		res, err := s.Allow(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock.advance(10 * time.Second)
	}

	res, err := s.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter, "oldest stamp leaves the window 30s from now")

	other, err := s.Allow(ctx, "other-ip", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.advance(31 * time.Second)
	res, err = s.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemorySweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewInMemory().WithClock(clock.now)
	_, err := s.Allow(context.Background(), "ip", 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	clock.advance(30 * time.Second)
	s.Sweep(time.Minute)
	assert.Equal(t, 1, s.Len())

	clock.advance(31 * time.Second)
	s.Sweep(time.Minute)
	assert.Equal(t, 0, s.Len())
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(100, 0)
	assert.Equal(t, 2, retryAfter(now, now.Add(1500*time.Millisecond)))
	assert.Equal(t, 1, retryAfter(now, now))
}
