package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache backed by Redis, for sharing memoized outputs
// across restarts and between replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.Mutex
	closed bool
}

// RedisCacheConfig holds Redis connection configuration for the cache.
type RedisCacheConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL      string
	Password string
	DB       int

	// Prefix for all keys (default: "jobcache")
	Prefix string

	// TTL for entries (default: 24h)
	TTL time.Duration
}

// DefaultRedisCacheConfig returns sensible defaults.
func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		URL:    "redis://localhost:6379/0",
		Prefix: "jobcache",
		TTL:    24 * time.Hour,
	}
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(cfg *RedisCacheConfig) (*RedisCache, error) {
	if cfg == nil {
		cfg = DefaultRedisCacheConfig()
	}

	opts := &redis.Options{
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		if parsed.Password != "" && cfg.Password == "" {
			opts.Password = parsed.Password
		}
		if parsed.DB != 0 && cfg.DB == 0 {
			opts.DB = parsed.DB
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "jobcache"
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) hitsKey(key string) string {
	return c.prefix + ":" + key + ":hits"
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}

	// Access counting happens out of band so a hot path stays one round trip.
	hits, err := c.client.Incr(ctx, c.hitsKey(key)).Result()
	if err == nil {
		entry.AccessCount = hits
	}

	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, output map[string]interface{}) error {
	entry := &Entry{
		Output:    output,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key(key), raw, c.ttl)
	pipe.Set(ctx, c.hitsKey(key), 0, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	pingStart := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"adapter": "redis",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	return map[string]interface{}{
		"adapter":      "redis",
		"healthy":      true,
		"prefix":       c.prefix,
		"ttl_hours":    c.ttl.Hours(),
		"ping_latency": time.Since(pingStart).String(),
	}, nil
}

func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
