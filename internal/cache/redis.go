// Package cache holds the Redis-backed session cache and rate limiter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool defaults. One API process keeps a small pool; the activity
// worker's blocking reads use one connection of it.
const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 2
	clientName          = "agentdesk"
)

// Cache wraps a Redis client with the agentdesk key layout.
type Cache struct {
	client *redis.Client
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := clientOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of it.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// clientOptions parses redisURL and applies the pool defaults unless the
// URL already sets them.
func clientOptions(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opt.PoolSize == 0 {
		opt.PoolSize = defaultPoolSize
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = defaultMinIdleConns
	}
	if opt.PoolTimeout == 0 {
		opt.PoolTimeout = 4 * time.Second
	}
	if opt.ConnMaxIdleTime == 0 {
		opt.ConnMaxIdleTime = 5 * time.Minute
	}
	if opt.ClientName == "" {
		opt.ClientName = clientName
	}

	return opt, nil
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the activity stream.
func (c *Cache) Client() *redis.Client {
	return c.client
}
