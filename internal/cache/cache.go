// Package cache holds listing results in Redis. Every operation is best
// effort: errors are logged and reported as a miss or a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a JSON value cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedis connects to endpoint, which is either host:port or a redis:// URL.
func NewRedis(endpoint string, log *zap.Logger) (*Redis, error) {
	opts := &redis.Options{Addr: endpoint}
	if strings.Contains(endpoint, "://") {
		parsed, err := redis.ParseURL(endpoint)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	opts.MaxRetries = 1
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return &Redis{client: redis.NewClient(opts), log: log}, nil
}

// Get decodes the value at key into v and reports whether it was found.
func (c *Redis) Get(ctx context.Context, key string, v any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Version returns the current generation of key. A listing computed after
// this call may only be stored with SetIfVersion under the same generation.
// ok is false when Redis is unreachable; the caller should then skip storing.
func (c *Redis) Version(ctx context.Context, key string) (string, bool) {
	gen, err := c.client.Get(ctx, genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		c.log.Warn("cache version failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return gen, true
}

// setIfVersion writes KEYS[1] only while the generation in KEYS[2] still
// equals ARGV[2].
var setIfVersion = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// SetIfVersion stores v under key for ttl, or without expiry when ttl <= 0,
// unless key was invalidated since version was read. It reports whether v
// was stored.
func (c *Redis) SetIfVersion(ctx context.Context, key string, v any, ttl time.Duration, version string) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	stored, err := setIfVersion.Run(ctx, c.client, []string{key, genKey(key)}, raw, version, ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return stored == 1
}

// Invalidate removes key and bumps its generation in one transaction, so a
// listing read before the write can no longer be stored.
func (c *Redis) Invalidate(ctx context.Context, key string) {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(key))
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		c.log.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func genKey(key string) string { return key + ":gen" }

// Close releases the connection pool.
func (c *Redis) Close() error { return c.client.Close() }

// Nop is used when no cache is configured; every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string, any) bool                                 { return false }
func (Nop) Version(context.Context, string) (string, bool)                        { return "", false }
func (Nop) SetIfVersion(context.Context, string, any, time.Duration, string) bool { return false }
func (Nop) Invalidate(context.Context, string)                                    {}
