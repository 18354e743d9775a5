// Package cache stores raw search page bodies so repeated requests for the
// same query and page can skip the network.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// PageCache is implemented by every page body store.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}

// Key builds the cache key for one page of a query against an endpoint.
func Key(endpoint, query string, page int) string {
	v := url.Values{}
	v.Set("query", query)
	v.Set("page", strconv.Itoa(page))
	return endpoint + "?" + v.Encode()
}

// LRU is an in-process cache bounded by entry count and age.
type LRU struct {
	entries *expirable.LRU[string, []byte]
}

// NewLRU creates an in-memory cache holding at most size pages for ttl.
func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive")
	}
	return &LRU{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}, nil
}

// Get returns the cached body for key.
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, ok := c.entries.Get(key)
	return body, ok, nil
}

// Set stores a copy of body under key.
func (c *LRU) Set(_ context.Context, key string, body []byte) error {
	stored := make([]byte, len(body))
	copy(stored, body)
	c.entries.Add(key, stored)
	return nil
}

// Len reports the number of live entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Redis shares cached pages between runs.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. Keys are namespaced with prefix and expire after ttl.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("redis cache ttl must be positive")
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get returns the cached body for key. A missing key is not an error.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return body, true, nil
}

// Set stores body under key with the configured ttl.
func (c *Redis) Set(ctx context.Context, key string, body []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
