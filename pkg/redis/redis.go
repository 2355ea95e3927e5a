package redis

import (
	"context"
	"fmt"
	"time"

	"homework-helper/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with the key prefix used by this service
type Client struct {
	*redis.Client
	prefix string
}

// NewClient creates a client from the store section of the configuration
func NewClient(cfg *config.Config) *Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	return &Client{Client: client, prefix: cfg.Store.RedisPrefix}
}

// Wrap adopts an existing go-redis client
func Wrap(client *redis.Client, prefix string) *Client {
	return &Client{Client: client, prefix: prefix}
}

// Key joins the service prefix with a key
func (c *Client) Key(key string) string {
	return c.prefix + key
}

// Check pings the server, for the health checker
func (c *Client) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
