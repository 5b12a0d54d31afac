package service

import (
	"context"
	"strings"
	"time"

	"github.com/karingamassive/membership-service/internal/sidestore"
)

// OTPStore holds one-time codes under "<contact>OTP".
type OTPStore struct {
	store sidestore.Store
	ttl   time.Duration
}

func NewOTPStore(store sidestore.Store, ttl time.Duration) *OTPStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &OTPStore{store: store, ttl: ttl}
}

func (s *OTPStore) TTL() time.Duration { return s.ttl }

func (s *OTPStore) Save(ctx context.Context, contact, code string) error {
	return s.store.Set(ctx, otpKey(contact), code, s.ttl)
}

func (s *OTPStore) Get(ctx context.Context, contact string) (string, error) {
	return s.store.Get(ctx, otpKey(contact))
}

// Consume deletes the code only if it is still the one that was verified,
// so a code can be redeemed exactly once.
func (s *OTPStore) Consume(ctx context.Context, contact, code string) error {
	return s.store.CompareAndDelete(ctx, otpKey(contact), code)
}

func otpKey(contact string) string {
	return strings.TrimSpace(contact) + "OTP"
}
