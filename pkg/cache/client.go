// Package cache is the Redis hot tier: session state, cached entity lists
// and the processing queue primitives live here. The durable store stays
// authoritative; everything in this tier can be rebuilt from it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key does not exist in the hot tier.
var ErrCacheMiss = errors.New("cache miss")

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfigFromEnv reads Redis settings from the environment.
func LoadConfigFromEnv() Config {
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return Config{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// Client wraps the Redis connection with JSON value helpers.
type Client struct {
	rdb redis.UniversalClient
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewWithClient wraps an existing Redis client (used by tests with miniredis).
func NewWithClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Redis exposes the underlying client for sorted-set queue operations.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetJSON stores v as JSON under key with the given TTL (0 = no expiry).
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetJSON loads the JSON value at key into dst. Returns ErrCacheMiss when
// the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Expire refreshes the TTL on every given key that exists.
func (c *Client) Expire(ctx context.Context, ttl time.Duration, keys ...string) error {
	for _, key := range keys {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("failed to refresh ttl on %s: %w", key, err)
		}
	}
	return nil
}

// SAdd adds members to a set.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to add to set %s: %w", key, err)
	}
	return nil
}

// SRem removes members from a set.
func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to remove from set %s: %w", key, err)
	}
	return nil
}

// SMembers returns all members of a set.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read set %s: %w", key, err)
	}
	return members, nil
}
