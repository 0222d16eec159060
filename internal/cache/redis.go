package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the Cache interface with Redis, for deployments where
// several replicas should share cached provider responses.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis using a URL (redis://...).
func NewRedisCache(redisURL, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

// Get retrieves a value; misses and transport errors both report absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		fmt.Printf("Warning: redis set failed for %s: %v\n", key, err)
	}
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, c.key(key))
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NewFromEnv picks Redis when REDIS_URL is set and falls back to the
// in-process cache otherwise.
func NewFromEnv(prefix string) Cache {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return NewMemoryCache()
	}

	c, err := NewRedisCache(redisURL, prefix)
	if err != nil {
		fmt.Printf("Warning: redis unavailable, using in-memory cache: %v\n", err)
		return NewMemoryCache()
	}
	fmt.Println("Using Redis cache")
	return c
}
