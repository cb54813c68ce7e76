// Package cache stores conversion results in Redis so that a repeated
// payload is answered without converting it again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or the cache is disabled.
var ErrMiss = errors.New("cache: miss")

// Dial connects to the Redis server named by a redis:// URL.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Cache is a JSON value cache with a fixed TTL. A Cache built with a nil
// client is disabled: Get always misses and Set does nothing.
type Cache struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

func New(client redis.Cmdable, keyPrefix string, ttl time.Duration) *Cache {
	if keyPrefix == "" {
		keyPrefix = "hl7bridge"
	}
	return &Cache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key derives the cache key of one conversion request.
func Key(tenantID, direction string, strict bool, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{'|'})
	h.Write([]byte(direction))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatBool(strict)))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) key(k string) string {
	return c.keyPrefix + ":result:" + k
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// Checker adapts a Redis client to the readiness probe.
type Checker struct {
	Client *redis.Client
}

func (c Checker) Name() string { return "redis" }

func (c Checker) Check(ctx context.Context) (interface{}, error) {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	stats := c.Client.PoolStats()
	return map[string]uint32{"total_conns": stats.TotalConns, "idle_conns": stats.IdleConns}, nil
}
