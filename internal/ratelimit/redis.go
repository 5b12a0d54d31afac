package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var consumeScript = redis.NewScript(`
local key = KEYS[1]
local cost = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local duration_ms = tonumber(ARGV[3])
local block_ms = tonumber(ARGV[4])

local consumed = tonumber(redis.call("GET", key) or "0")
if consumed >= limit then
  local ttl = redis.call("PTTL", key)
  if ttl < 0 then ttl = 0 end
  return {0, consumed, ttl}
end

consumed = redis.call("INCRBY", key, cost)
if consumed == cost then
  redis.call("PEXPIRE", key, duration_ms)
end
local ttl = redis.call("PTTL", key)
if consumed >= limit and block_ms > 0 then
  redis.call("PEXPIRE", key, block_ms)
  ttl = block_ms
end
if ttl < 0 then ttl = 0 end

local allowed = 1
if consumed > limit then allowed = 0 end
return {allowed, consumed, ttl}
`)

// refundScript gives points back without touching the TTL. A counter that
// drops to zero is removed.
var refundScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return 0
end
local consumed = redis.call("DECRBY", key, tonumber(ARGV[1]))
if consumed <= 0 then
  redis.call("DEL", key)
  return 0
end
return consumed
`)

// RedisBackend keeps one integer key per counter. The key's TTL is the
// remaining window, or the remaining block once the budget is spent.
type RedisBackend struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func NewRedisBackend(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisBackend{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (b *RedisBackend) Consume(ctx context.Context, p Policy, key string, points int) (Result, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	raw, err := consumeScript.Run(ctx, b.client, []string{b.key(p, key)},
		points,
		p.Points,
		p.Duration.Milliseconds(),
		p.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("consume %s: %w", p.Name, err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("consume %s: unexpected script reply %v", p.Name, raw)
	}
	return newResult(p, raw[0] == 1, int(raw[1]), time.Duration(raw[2])*time.Millisecond), nil
}

func (b *RedisBackend) Refund(ctx context.Context, p Policy, key string, points int) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := refundScript.Run(ctx, b.client, []string{b.key(p, key)}, points).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("refund %s: %w", p.Name, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, p Policy, key string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.client.Del(ctx, b.key(p, key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", p.Name, err)
	}
	return nil
}

func (b *RedisBackend) key(p Policy, key string) string {
	return b.prefix + ":" + p.Name + ":" + key
}

func (b *RedisBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.opTimeout)
}
