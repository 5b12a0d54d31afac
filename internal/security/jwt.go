package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/karingamassive/membership-service/internal/domain"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
)

// Identity is the authorization snapshot embedded in both token kinds.
type Identity struct {
	UserID uint
	Rank   domain.Rank
	Status domain.Status
	Area   string
}

func IdentityOf(u *domain.User) Identity {
	return Identity{UserID: u.ID, Rank: u.Rank, Status: u.Status, Area: u.Area}
}

type Claims struct {
	TokenType string        `json:"token_type"`
	Rank      domain.Rank   `json:"rank"`
	Status    domain.Status `json:"status"`
	Area      string        `json:"area,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenMalformed
	}
	return uint(id), nil
}

func (c *Claims) Identity() (Identity, error) {
	id, err := c.UserID()
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: id, Rank: c.Rank, Status: c.Status, Area: c.Area}, nil
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
}

func (m *JWTManager) SignAccessToken(id Identity, ttl time.Duration) (string, error) {
	return m.sign(id, ttl, TokenTypeAccess, m.accessSecret, uuid.NewString())
}

// SignRefreshToken returns the signed token together with its JTI.
func (m *JWTManager) SignRefreshToken(id Identity, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	raw, err := m.sign(id, ttl, TokenTypeRefresh, m.refreshSecret, jti)
	if err != nil {
		return "", "", err
	}
	return raw, jti, nil
}

func (m *JWTManager) sign(id Identity, ttl time.Duration, tokenType string, secret []byte, jti string) (string, error) {
	if id.UserID == 0 {
		return "", errors.New("sign token: missing user id")
	}
	if !id.Rank.Valid() || !id.Status.Valid() {
		return "", fmt.Errorf("sign token: invalid rank %q or status %q", id.Rank, id.Status)
	}
	now := m.now()
	claims := Claims{
		TokenType: tokenType,
		Rank:      id.Rank,
		Status:    id.Status,
		Area:      id.Area,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, TokenTypeAccess)
}

// ParseRefreshToken verifies a refresh token. On ErrTokenExpired the claims
// are returned alongside the error.
func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, TokenTypeRefresh)
}

func (m *JWTManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		err = classifyParseError(err)
		// Expiry is only reported once the signature checked out, so the
		// subject of an expired token can still be trusted.
		if errors.Is(err, ErrTokenExpired) && claims.TokenType == tokenType {
			return claims, err
		}
		return nil, err
	}
	if !tok.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenMalformed, claims.TokenType)
	}
	if !claims.Rank.Valid() || !claims.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid authorization attributes", ErrTokenMalformed)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
