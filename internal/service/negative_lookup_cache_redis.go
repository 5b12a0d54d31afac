package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNegativeLookupCacheStore remembers lookups that found nothing. Keys
// are hashed so contacts never appear in the keyspace.
type RedisNegativeLookupCacheStore struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func NewRedisNegativeLookupCacheStore(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisNegativeLookupCacheStore {
	if prefix == "" {
		prefix = "negative_lookup_cache"
	}
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &RedisNegativeLookupCacheStore{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
	}
}

func (s *RedisNegativeLookupCacheStore) Get(ctx context.Context, namespace, key string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	_, err := s.client.Get(ctx, s.dataKey(namespace, key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisNegativeLookupCacheStore) Set(ctx context.Context, namespace, key string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Set(ctx, s.dataKey(namespace, key), "1", ttl).Err()
}

func (s *RedisNegativeLookupCacheStore) Delete(ctx context.Context, namespace, key string) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Del(ctx, s.dataKey(namespace, key)).Err()
}

func (s *RedisNegativeLookupCacheStore) dataKey(namespace, key string) string {
	return fmt.Sprintf("%s:data:%s:%s", s.prefix, normalizeToken(namespace), hashToken(key))
}

func normalizeToken(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "_"
	}
	return v
}

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(v)))
	return hex.EncodeToString(sum[:16])
}
