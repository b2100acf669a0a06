package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is absent
var ErrNotFound = errors.New("redis: key not found")

// raiseScript sets KEYS[1] to ARGV[1] only when that is larger than the
// stored value, refreshes the TTL and returns the resulting value.
var raiseScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local next = tonumber(ARGV[1])
if next > cur then
  cur = next
end
redis.call("SET", KEYS[1], cur, "PX", ARGV[2])
return cur
`)

// RedisClient is a thin wrapper over go-redis
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to addr, which may be a redis:// URL or host:port
func NewRedisClient(addr string) (*RedisClient, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	return &RedisClient{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores value under key
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// GetInt64 reads an integer value
func (r *RedisClient) GetInt64(ctx context.Context, key string) (int64, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	return v, err
}

// RaiseInt64 stores v under key unless a larger value is already there
// and returns what is stored afterwards.
func (r *RedisClient) RaiseInt64(ctx context.Context, key string, v int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return raiseScript.Run(ctx, r.client, []string{key}, v, ttl.Milliseconds()).Int64()
}

// Del removes key
func (r *RedisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the connection pool
func (r *RedisClient) Close() error {
	return r.client.Close()
}
