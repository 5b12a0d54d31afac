package service

import (
	"context"
	"errors"
	"time"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

var (
	ErrRefreshExpired  = errors.New("refresh token expired and revoked")
	ErrRefreshNotFound = errors.New("refresh token not found in store")
	ErrRefreshMismatch = errors.New("refresh token does not match stored token")
	ErrRefreshInvalid  = errors.New("refresh token malformed")
)

type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// IdentityLoader returns the current authorization attributes of a user.
// Rotation re-reads them so a refreshed pair never carries a stale rank.
type IdentityLoader func(ctx context.Context, userID uint) (*domain.User, error)

type TokenService struct {
	jwtMgr     *security.JWTManager
	store      *RefreshStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, store *RefreshStore, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, store: store, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue signs a new pair and overwrites the stored refresh token, which
// invalidates any refresh token issued earlier for the same user.
func (s *TokenService) Issue(ctx context.Context, id security.Identity) (TokenPair, error) {
	pair, rec, err := s.mint(id, 1)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Put(ctx, rec, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// VerifyAccess is stateless; it never touches the side store.
func (s *TokenService) VerifyAccess(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseAccessToken(raw)
}

// Refresh rotates the pair bound to userID. The stored record is replaced
// with compare-and-swap, so of two concurrent refreshes presenting the same
// token exactly one succeeds and the other gets ErrRefreshMismatch.
func (s *TokenService) Refresh(ctx context.Context, raw string, userID uint, load IdentityLoader) (TokenPair, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(raw)
	if errors.Is(err, security.ErrTokenExpired) {
		if claims == nil {
			return TokenPair{}, ErrRefreshInvalid
		}
		if sub, subErr := claims.UserID(); subErr == nil && sub == userID {
			if delErr := s.store.Delete(ctx, userID); delErr != nil {
				return TokenPair{}, delErr
			}
		}
		observability.RecordAuthRefresh(ctx, "expired")
		return TokenPair{}, ErrRefreshExpired
	}
	if err != nil {
		observability.RecordAuthRefresh(ctx, "malformed")
		return TokenPair{}, ErrRefreshInvalid
	}
	if sub, err := claims.UserID(); err != nil || sub != userID {
		observability.RecordAuthRefresh(ctx, "mismatch")
		return TokenPair{}, ErrRefreshMismatch
	}

	stored, storedRaw, err := s.store.Load(ctx, userID)
	if errors.Is(err, sidestore.ErrNotFound) {
		observability.RecordAuthRefresh(ctx, "not_found")
		return TokenPair{}, ErrRefreshNotFound
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !security.ConstantTimeEqual(stored.RefreshToken, raw) {
		observability.RecordAuthRefresh(ctx, "mismatch")
		return TokenPair{}, ErrRefreshMismatch
	}

	id, err := claims.Identity()
	if err != nil {
		return TokenPair{}, ErrRefreshInvalid
	}
	if load != nil {
		user, err := load(ctx, userID)
		if err != nil {
			return TokenPair{}, err
		}
		id = security.IdentityOf(user)
	}

	pair, next, err := s.mint(id, stored.Version+1)
	if err != nil {
		return TokenPair{}, err
	}
	switch err := s.store.Swap(ctx, storedRaw, next, s.refreshTTL); {
	case err == nil:
	case errors.Is(err, sidestore.ErrConflict):
		observability.RecordAuthRefresh(ctx, "lost_race")
		return TokenPair{}, ErrRefreshMismatch
	case errors.Is(err, sidestore.ErrNotFound):
		observability.RecordAuthRefresh(ctx, "not_found")
		return TokenPair{}, ErrRefreshNotFound
	default:
		return TokenPair{}, err
	}
	observability.RecordAuthRefresh(ctx, "success")
	return pair, nil
}

// Revoke deletes the stored refresh token; later refreshes fail with ErrRefreshNotFound.
func (s *TokenService) Revoke(ctx context.Context, userID uint) error {
	return s.store.Delete(ctx, userID)
}

func (s *TokenService) mint(id security.Identity, version int64) (TokenPair, *domain.RefreshSession, error) {
	access, err := s.jwtMgr.SignAccessToken(id, s.accessTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, jti, err := s.jwtMgr.SignRefreshToken(id, s.refreshTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}
	now := s.now()
	rec := &domain.RefreshSession{
		UserID:       id.UserID,
		RefreshToken: refresh,
		TokenID:      jti,
		Version:      version,
		IssuedAt:     now.UTC(),
		ExpiresAt:    now.Add(s.refreshTTL).UTC(),
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, rec, nil
}
