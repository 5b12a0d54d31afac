package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

// RefreshStore keeps the single valid refresh token of each user, keyed by user id.
type RefreshStore struct {
	store sidestore.Store
}

func NewRefreshStore(store sidestore.Store) *RefreshStore {
	return &RefreshStore{store: store}
}

// Load returns the stored record and its raw encoding, which is the
// comparison value for Swap.
func (s *RefreshStore) Load(ctx context.Context, userID uint) (*domain.RefreshSession, string, error) {
	raw, err := s.store.Get(ctx, refreshKey(userID))
	if err != nil {
		return nil, "", err
	}
	var rec domain.RefreshSession
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, "", fmt.Errorf("decode refresh record: %w", err)
	}
	return &rec, raw, nil
}

// Put stores rec for ttl. The caller passes the same lifetime it signed the
// token with, so the record never outlives or predeceases the token.
func (s *RefreshStore) Put(ctx context.Context, rec *domain.RefreshSession, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode refresh record: %w", err)
	}
	return s.store.Set(ctx, refreshKey(rec.UserID), string(raw), ttl)
}

// Swap replaces the record only if it still encodes to expected.
func (s *RefreshStore) Swap(ctx context.Context, expected string, next *domain.RefreshSession, ttl time.Duration) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode refresh record: %w", err)
	}
	return s.store.CompareAndSwap(ctx, refreshKey(next.UserID), expected, string(raw), ttl)
}

func (s *RefreshStore) Delete(ctx context.Context, userID uint) error {
	return s.store.Delete(ctx, refreshKey(userID))
}

func refreshKey(userID uint) string {
	return "refresh:" + strconv.FormatUint(uint64(userID), 10)
}
