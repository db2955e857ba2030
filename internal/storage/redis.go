package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("labuploads-storage")

// RedisClient owns the connection backing the upload index
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	ctx, span := tracer.Start(ctx, "redis.connect",
		trace.WithAttributes(
			attribute.String("addr", addr),
			attribute.Int("db", db),
		),
	)
	defer span.End()

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Cmdable exposes the command surface the upload index is built on
func (rc *RedisClient) Cmdable() redis.Cmdable {
	return rc.client
}

// Ping checks the connection is still usable
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
