// Package redis caches embedding vectors in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with batched byte-value operations.
type Client struct {
	rdb *goredis.Client
}

func NewClient(addr, password string, db int) *Client {
	return &Client{rdb: goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// MGetBytes returns one entry per key; misses are nil.
func (c *Client) MGetBytes(ctx context.Context, keys []string) ([][]byte, error) {
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetBytes writes every entry in one pipeline.
func (c *Client) SetBytes(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipelined set: %w", err)
	}
	return nil
}
