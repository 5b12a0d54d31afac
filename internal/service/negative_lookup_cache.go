package service

import (
	"context"
	"time"
)

// NamespaceUnknownContact caches contacts that matched no identity record.
const NamespaceUnknownContact = "login.contact.unknown"

// NegativeLookupCacheStore remembers lookups that found nothing so repeated
// attempts against unknown contacts skip the database.
type NegativeLookupCacheStore interface {
	Get(ctx context.Context, namespace, key string) (bool, error)
	Set(ctx context.Context, namespace, key string, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

type NoopNegativeLookupCacheStore struct{}

func NewNoopNegativeLookupCacheStore() *NoopNegativeLookupCacheStore {
	return &NoopNegativeLookupCacheStore{}
}

func (s *NoopNegativeLookupCacheStore) Get(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *NoopNegativeLookupCacheStore) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (s *NoopNegativeLookupCacheStore) Delete(context.Context, string, string) error {
	return nil
}
