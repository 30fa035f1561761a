//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisCache_Integration(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCache(startRedis(t))
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, SearchKey("Pizza"), []byte(`{"count":1}`), time.Minute))
	got, ok, err := c.Get(ctx, "search:pizza")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"count":1}`, string(got))

	require.NoError(t, c.Delete(ctx, "search:pizza"))
	_, ok, _ = c.Get(ctx, "search:pizza")
	assert.False(t, ok)

	n, remaining, err := c.Increment(ctx, "ctr", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, remaining)

	n, remaining, err = c.Increment(ctx, "ctr", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Greater(t, remaining, time.Duration(0))
}
