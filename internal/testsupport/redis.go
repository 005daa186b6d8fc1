package testsupport

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/bokzor/revenue-boost-sub014/internal/cache"
	"github.com/bokzor/revenue-boost-sub014/internal/config"
)

// RedisContainer holds references to the ephemeral Redis instance.
type RedisContainer struct {
	Container testcontainers.Container

	// Client is the raw go-redis client, used by counter-store tests.
	Client *goredis.Client

	// Snapshots is the wrapped L2 snapshot service.
	Snapshots cache.SnapshotService
}

// Terminate cleans up the container and closes the client.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a Redis 7-alpine container.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	// 1. Start Container
	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
		// Wait until "Ready to accept connections" appears in logs
		// or check port availability (redis module default).
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	// 2. Get Connection String
	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// 3. Initialize Application Redis Client with test config
	// Parse host:port from endpoint (e.g., "localhost:54321")
	host, port, _ := strings.Cut(endpoint, ":")

	testCfg := &config.RedisConfig{
		Host:           host,
		Port:           port,
		Password:       "",
		DB:             0,
		PingMaxRetries: 5,
		PingBackoff:    2 * time.Second,
	}
	redisClient, err := cache.NewRedisClient(ctx, testCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Client:    redisClient,
		Snapshots: cache.NewRedisSnapshots(redisClient),
	}, nil
}
