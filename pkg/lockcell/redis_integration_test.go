//go:build integration

package lockcell

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

// TestRedisCell_TwoClientsShareOneCell checks that separate connections, as
// used by separate bot invocations, observe each other's writes.
func TestRedisCell_TwoClientsShareOneCell(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	first, err := NewRedisCell(opts, "owner", "wiki")
	require.NoError(t, err)
	defer first.Close()

	second, err := NewRedisCell(opts, "owner", "wiki")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.TryClaim(ctx, 1))
	require.NoError(t, second.TryClaim(ctx, 2))

	holder, held, err := first.Read(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, Token(2), holder)

	require.NoError(t, first.Release(ctx))
	_, held, err = second.Read(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}
