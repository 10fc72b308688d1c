package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tgfiles/tgfiles/internal/core"
)

// hitScript resets or increments one window atomically. The hash holds the
// count and the window start in unix milliseconds; the key expires one
// millisecond after the window so idle windows evict themselves.
var hitScript = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
local now = tonumber(ARGV[1])
local win = tonumber(ARGV[2])
if (not start) or (now - tonumber(start) > win) then
  redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
  redis.call('PEXPIRE', KEYS[1], win + 1)
  return {1, now}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, tonumber(start)}
`)

// RedisStore keeps windows in Redis so several relay instances share quotas.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedisClient builds a client from a redis:// URL or a bare host:port.
func NewRedisClient(addr string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// NewRedisStore wraps client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{Client: client, Prefix: prefix}
}

// Backend implements Backend.
func (s *RedisStore) Backend() string { return "redis" }

// Hit implements WindowStore.
func (s *RedisStore) Hit(ctx context.Context, key core.WindowKey, now time.Time, window time.Duration) (core.RateWindow, error) {
	if s == nil || s.Client == nil {
		return core.RateWindow{}, errors.New("redis store is not initialized")
	}

	values, err := hitScript.Run(ctx, s.Client, []string{s.key(key)}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return core.RateWindow{}, fmt.Errorf("redis window hit: %w", err)
	}
	if len(values) != 2 {
		return core.RateWindow{}, fmt.Errorf("redis window hit: unexpected reply length %d", len(values))
	}

	return core.RateWindow{
		Count:       int(values[0]),
		WindowStart: time.UnixMilli(values[1]).UTC(),
		Window:      window,
	}, nil
}

// Sweep implements WindowStore. Redis expires windows itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return errors.New("redis store is not initialized")
	}
	return s.Client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

func (s *RedisStore) key(key core.WindowKey) string {
	return s.Prefix + key.Route + ":" + key.Client
}
