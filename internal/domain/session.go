package domain

import "time"

// RefreshSession is the side-store record backing the single active refresh token of a user.
type RefreshSession struct {
	UserID       uint      `json:"user_id"`
	RefreshToken string    `json:"refreshToken"`
	TokenID      string    `json:"token_id"`
	Version      int64     `json:"version"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}
