package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ccass-tracker/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisConn owns the shared Redis connection pool. The tracker keeps no
// responses in Redis; the pool backs the cross-replica request budget.
type RedisConn struct {
	client *redis.Client
}

// NewRedisConn dials Redis and fails fast when the server does not answer
func NewRedisConn(cfg *config.RedisConfig) (*RedisConn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 1,
		MaxRetries:   2,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr(), err)
	}

	return &RedisConn{client: client}, nil
}

// Client exposes the pool for the request budget
func (r *RedisConn) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisConn) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the pool
func (r *RedisConn) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
