package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewFixedWindowLimiter(NewMemoryCache(time.Minute), 2, time.Minute)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Count)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Other clients have their own window.
	d, err = l.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestFixedWindowLimiter_WindowResets(t *testing.T) {
	ctx := context.Background()
	l := NewFixedWindowLimiter(NewMemoryCache(time.Minute), 1, 20*time.Millisecond)

	d, _ := l.Allow(ctx, "c")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "c")
	assert.False(t, d.Allowed)

	time.Sleep(40 * time.Millisecond)
	d, err := l.Allow(ctx, "c")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
