package security

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/karingamassive/membership-service/internal/domain"
)

const (
	testAccessSecret  = "abcdefghijklmnopqrstuvwxyz123456"
	testRefreshSecret = "abcdefghijklmnopqrstuvwxyz654321"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("iss", "aud", testAccessSecret, testRefreshSecret)
}

func testIdentity() Identity {
	return Identity{UserID: 42, Rank: domain.RankCommittee, Status: domain.StatusActive, Area: "north"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestJWTManager()
	raw, err := m.SignAccessToken(testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := m.ParseAccessToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	id, err := claims.Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id != testIdentity() {
		t.Fatalf("identity mismatch: got %+v", id)
	}
	if claims.ID == "" {
		t.Fatal("expected jti on access token")
	}
}

func TestAccessTokenExpired(t *testing.T) {
	m := newTestJWTManager()
	raw, err := m.SignAccessToken(testIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := m.ParseAccessToken(raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	raw, err := NewJWTManager("iss", "aud", "another-secret-another-secret-xx", testRefreshSecret).SignAccessToken(testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestJWTManager().ParseAccessToken(raw); !errors.Is(err, ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestParseMalformedTokens(t *testing.T) {
	m := newTestJWTManager()
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := m.ParseAccessToken(raw); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("ParseAccessToken(%q) expected ErrTokenMalformed, got %v", raw, err)
		}
	}
}

func TestRefreshTokenCannotBeUsedAsAccessToken(t *testing.T) {
	m := NewJWTManager("iss", "aud", testAccessSecret, testAccessSecret)
	raw, _, err := m.SignRefreshToken(testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	if _, err := m.ParseAccessToken(raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected token type rejection, got %v", err)
	}
}

func TestParseRejectsUnknownRank(t *testing.T) {
	claims := Claims{
		TokenType: TokenTypeAccess,
		Rank:      domain.Rank("OWNER"),
		Status:    domain.StatusActive,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "iss",
			Subject:   "7",
			Audience:  []string{"aud"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestJWTManager().ParseAccessToken(raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestSignRejectsInvalidIdentity(t *testing.T) {
	m := newTestJWTManager()
	if _, err := m.SignAccessToken(Identity{Rank: domain.RankMember, Status: domain.StatusActive}, time.Hour); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := m.SignAccessToken(Identity{UserID: 1, Rank: "BOSS", Status: domain.StatusActive}, time.Hour); err == nil {
		t.Fatal("expected error for invalid rank")
	}
}

func TestClientIPAndBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	req.Header.Set("Authorization", "bearer  abc.def.ghi ")
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("ClientIP=%q", got)
	}
	if got := BearerToken(req); got != "abc.def.ghi" {
		t.Fatalf("BearerToken=%q", got)
	}
	req.Header.Set("Authorization", "Basic Zm9v")
	if got := BearerToken(req); got != "" {
		t.Fatalf("expected empty bearer for basic auth, got %q", got)
	}
}

func TestPasswordAndCodes(t *testing.T) {
	hash, err := HashPassword("s3cret!", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret!") || CheckPassword(hash, "wrong") || CheckPassword("", "s3cret!") {
		t.Fatal("unexpected password check result")
	}
	code, err := NewNumericCode(6)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		t.Fatalf("expected 6 digit code, got %q", code)
	}
}

func TestExpiredRefreshTokenKeepsSubject(t *testing.T) {
	m := newTestJWTManager()
	raw, _, err := m.SignRefreshToken(testIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	claims, err := m.ParseRefreshToken(raw)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if claims == nil || claims.Subject != "42" {
		t.Fatalf("expected subject on expired claims, got %+v", claims)
	}
}
