// Package sidestore wraps the Redis key-value store that holds refresh tokens,
// one-time codes and other short-lived state.
package sidestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound    = errors.New("side store: key not found")
	ErrConflict    = errors.New("side store: value changed")
	ErrUnavailable = errors.New("side store unavailable")
)

// Store is a single-key-atomic key-value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// CompareAndSwap replaces key with next only while it still holds expected.
	CompareAndSwap(ctx context.Context, key, expected, next string, ttl time.Duration) error
	// CompareAndDelete removes key only while it still holds expected.
	CompareAndDelete(ctx context.Context, key, expected string) error
}

const compareAndSwapScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 2
`

const compareAndDeleteScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
redis.call("DEL", KEYS[1])
return 2
`

var (
	compareAndSwapLua   = redis.NewScript(compareAndSwapScript)
	compareAndDeleteLua = redis.NewScript(compareAndDeleteScript)
)

const (
	casStatusNotFound int64 = 0
	casStatusConflict int64 = 1
	casStatusApplied  int64 = 2
)

type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &RedisStore{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return "", wrapErr(err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return wrapErr(s.client.Set(ctx, s.key(key), value, ttl).Err())
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return wrapErr(s.client.Del(ctx, s.key(key)).Err())
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, expected, next string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	status, err := compareAndSwapLua.Run(ctx, s.client, []string{s.key(key)}, expected, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return wrapErr(err)
	}
	return casResult(status)
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	status, err := compareAndDeleteLua.Run(ctx, s.client, []string{s.key(key)}, expected).Int64()
	if err != nil {
		return wrapErr(err)
	}
	return casResult(status)
}

// Ping reports whether the store answers within the operation timeout.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return wrapErr(s.client.Ping(ctx).Err())
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func casResult(status int64) error {
	switch status {
	case casStatusApplied:
		return nil
	case casStatusConflict:
		return ErrConflict
	case casStatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected script status %d", ErrUnavailable, status)
	}
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
