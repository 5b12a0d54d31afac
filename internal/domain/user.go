package domain

import (
	"fmt"
	"strings"
	"time"
)

type Rank string

const (
	RankMember         Rank = "MEMBER"
	RankRepresentative Rank = "REPRESENTATIVE"
	RankCommittee      Rank = "COMMITTEE"
	RankAdmin          Rank = "ADMIN"
	RankSuperAdmin     Rank = "SUPERADMIN"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

func ParseRank(v string) (Rank, error) {
	r := Rank(strings.ToUpper(strings.TrimSpace(v)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid rank %q", v)
	}
	return r, nil
}

func (r Rank) Valid() bool {
	switch r {
	case RankMember, RankRepresentative, RankCommittee, RankAdmin, RankSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r carries administrative rights; SUPERADMIN is a superset of ADMIN.
func (r Rank) IsAdmin() bool {
	return r == RankAdmin || r == RankSuperAdmin
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", v)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

type User struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	FullName             string    `gorm:"size:64;not null" json:"full_name"`
	Contact              string    `gorm:"size:20;uniqueIndex;not null" json:"contact"`
	Email                string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	IdentificationNumber string    `gorm:"size:16;uniqueIndex;not null" json:"identification_number"`
	RegistrationNumber   string    `gorm:"size:32;uniqueIndex;not null" json:"registration_number"`
	Occupation           string    `gorm:"size:128" json:"occupation"`
	Village              string    `gorm:"size:128" json:"village"`
	Area                 string    `gorm:"size:128;index" json:"area"`
	Avatar               string    `gorm:"size:512" json:"avatar"`
	Score                float64   `gorm:"default:1" json:"score"`
	PasswordHash         string    `gorm:"size:255" json:"-"`
	Rank                 Rank      `gorm:"size:16;not null;default:MEMBER;index" json:"rank"`
	Status               Status    `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// UserPatch holds the optional fields of a profile update; nil means unchanged.
type UserPatch struct {
	FullName     *string
	Email        *string
	Occupation   *string
	Village      *string
	Area         *string
	Avatar       *string
	PasswordHash *string
	Rank         *Rank
	Status       *Status
}

func (p UserPatch) Empty() bool {
	return p.FullName == nil && p.Email == nil && p.Occupation == nil && p.Village == nil &&
		p.Area == nil && p.Avatar == nil && p.PasswordHash == nil && p.Rank == nil && p.Status == nil
}
