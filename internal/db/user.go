package db

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tier is a user's purchased entitlement level.
type Tier string

const (
	TierFree         Tier = "FREE"
	TierProfessional Tier = "PROFESSIONAL"
	TierPremium      Tier = "PREMIUM"
)

// Rank orders tiers by increasing entitlement. Unknown tiers rank below FREE.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierProfessional:
		return 2
	case TierPremium:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier accepts any casing ("premium", "Premium").
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// User is an account that can sign in, generate and save roadmaps, buy a
// tier and (at PREMIUM) file revision requests. The bootstrap admin (from
// env) is created as a row in this table on startup.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`

	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Name         string `gorm:"size:128" json:"name"`

	// Tier is mutated by payment webhooks; never cache it in a session.
	Tier Tier `gorm:"type:varchar(20);not null;default:'FREE'" json:"tier"`

	// IsAdmin marks users that can answer revision requests and run the
	// expiration sweep. The bootstrap admin will have IsAdmin=true.
	IsAdmin bool `gorm:"default:false" json:"isAdmin"`

	// SessionVersion is signed into session cookies. Bumping it (password
	// change or reset) signs the user out everywhere.
	SessionVersion uint `gorm:"not null;default:0" json:"-"`
}

// SetPasswordHash stores a new password hash and bumps the session version,
// which invalidates every session issued for the user. user is updated in
// place.
func SetPasswordHash(db *gorm.DB, user *User, passwordHash string) error {
	err := db.Model(&User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"password_hash":   passwordHash,
		"session_version": gorm.Expr("session_version + 1"),
	}).Error
	if err != nil {
		return err
	}
	var fresh User
	if err := db.Select("id", "session_version").First(&fresh, user.ID).Error; err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	user.SessionVersion = fresh.SessionVersion
	return nil
}
