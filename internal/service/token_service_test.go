package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

func memberIdentity(id uint) security.Identity {
	return security.Identity{UserID: id, Rank: domain.RankMember, Status: domain.StatusActive, Area: "north"}
}

func TestIssueThenRefreshRotatesBothTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tokens.Issue(ctx, memberIdentity(7))
	require.NoError(t, err)

	second, err := f.tokens.Refresh(ctx, first.RefreshToken, 7, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rec, _, err := f.refresh.Load(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, second.RefreshToken, rec.RefreshToken)
	require.Equal(t, int64(2), rec.Version)

	_, err = f.tokens.Refresh(ctx, first.RefreshToken, 7, nil)
	require.ErrorIs(t, err, ErrRefreshMismatch)
}

func TestIssueOverwritesPreviousRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tokens.Issue(ctx, memberIdentity(7))
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, memberIdentity(7))
	require.NoError(t, err)

	_, err = f.tokens.Refresh(ctx, first.RefreshToken, 7, nil)
	require.ErrorIs(t, err, ErrRefreshMismatch)
}

func TestRevokeThenRefreshIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.tokens.Issue(ctx, memberIdentity(9))
	require.NoError(t, err)
	require.NoError(t, f.tokens.Revoke(ctx, 9))

	_, err = f.tokens.Refresh(ctx, pair.RefreshToken, 9, nil)
	require.ErrorIs(t, err, ErrRefreshNotFound)
}

func TestRefreshExpiredTokenDeletesStoredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, jti, err := f.jwt.SignRefreshToken(memberIdentity(11), -time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.refresh.Put(ctx, &domain.RefreshSession{
		UserID:       11,
		RefreshToken: expired,
		TokenID:      jti,
		Version:      1,
		IssuedAt:     time.Now().Add(-time.Hour),
		ExpiresAt:    time.Now().Add(time.Hour),
	}, time.Hour))

	_, err = f.tokens.Refresh(ctx, expired, 11, nil)
	require.ErrorIs(t, err, ErrRefreshExpired)

	_, _, err = f.refresh.Load(ctx, 11)
	require.ErrorIs(t, err, sidestore.ErrNotFound)
}

func TestRefreshRecordLifetimeFollowsServiceClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	skewed := time.Now().Add(-48 * time.Hour)
	f.tokens.now = func() time.Time { return skewed }

	pair, err := f.tokens.Issue(ctx, memberIdentity(21))
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, f.mr.TTL("membership:refresh:21"))

	rec, _, err := f.refresh.Load(ctx, 21)
	require.NoError(t, err)
	require.True(t, skewed.Add(24*time.Hour).Equal(rec.ExpiresAt))

	f.mr.FastForward(time.Hour)
	_, err = f.tokens.Refresh(ctx, pair.RefreshToken, 21, nil)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, f.mr.TTL("membership:refresh:21"))
}

func TestRefreshRejectsOtherUsersToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.tokens.Issue(ctx, memberIdentity(3))
	require.NoError(t, err)
	_, err = f.tokens.Refresh(ctx, pair.RefreshToken, 4, nil)
	require.ErrorIs(t, err, ErrRefreshMismatch)

	_, err = f.tokens.Refresh(ctx, pair.AccessToken, 3, nil)
	require.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.tokens.Issue(ctx, memberIdentity(21))
	require.NoError(t, err)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		mismatch int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tokens.Refresh(ctx, pair.RefreshToken, 21, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrRefreshMismatch):
				mismatch++
			default:
				t.Errorf("unexpected refresh error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, winners)
	require.Equal(t, callers-1, mismatch)
}

func TestVerifyAccessRoundTripAndStoreIndependence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.tokens.Issue(ctx, memberIdentity(5))
	require.NoError(t, err)
	f.mr.Close()

	claims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	id, err := claims.Identity()
	require.NoError(t, err)
	require.Equal(t, memberIdentity(5), id)
}

func TestIssueSurfacesStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.tokens.Issue(context.Background(), memberIdentity(5))
	require.ErrorIs(t, err, sidestore.ErrUnavailable)
	require.True(t, IsDependencyError(err))
}
