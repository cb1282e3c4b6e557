// Package redis implements the optional fan-out, locking and rate limiting
// infrastructure on go-redis/v9. Every key and channel carries the
// "polybot:" prefix.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key, channel and stream this package touches.
const KeyPrefix = "polybot:"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// StreamLen caps XADD streams (approximate MAXLEN). Zero uses 10000.
	StreamLen int64
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb       *redis.Client
	streamLen int64
}

// New creates a new Redis Client, pings it to verify connectivity, and returns
// the wrapper. It returns an error if the connection cannot be established.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	streamLen := cfg.StreamLen
	if streamLen <= 0 {
		streamLen = 10000
	}
	return &Client{rdb: rdb, streamLen: streamLen}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key prefixes name with KeyPrefix unless it is already prefixed.
func Key(name string) string {
	if len(name) >= len(KeyPrefix) && name[:len(KeyPrefix)] == KeyPrefix {
		return name
	}
	return KeyPrefix + name
}
