// Package cache keeps short code to destination lookups in Redis so the
// public redirect path can skip the database read.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultTTL = time.Hour
	keyPrefix  = "qrlink:dest:"
)

// DestinationCache is a cache-aside store of destination URLs. Entries are
// filled after a database read and overwritten when a destination changes.
type DestinationCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewDestinationCache(client redis.UniversalClient, ttl time.Duration) *DestinationCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DestinationCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("redis connection successful")
	return client, nil
}

// Get returns the cached destination and whether it was present.
func (c *DestinationCache) Get(ctx context.Context, shortCode string) (string, bool, error) {
	dest, err := c.client.Get(ctx, key(shortCode)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache: %w", err)
	}
	return dest, true, nil
}

func (c *DestinationCache) Set(ctx context.Context, shortCode, destinationURL string) error {
	if err := c.client.Set(ctx, key(shortCode), destinationURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Fill stores destinationURL only when no entry exists. Lookups use it so a
// value read before a concurrent update cannot replace the updated one.
func (c *DestinationCache) Fill(ctx context.Context, shortCode, destinationURL string) error {
	if err := c.client.SetNX(ctx, key(shortCode), destinationURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to fill cache: %w", err)
	}
	return nil
}

func key(shortCode string) string {
	return keyPrefix + shortCode
}
