package users

import (
	"strings"
	"time"
)

// ProviderGoogle tags identities established through Google sign-in.
const ProviderGoogle = "google"

// Identity maps a provider login onto the internal user id that scopes all synced data.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_user_identities_user"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:1024"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

type profile struct {
	email       string
	displayName string
	avatarURL   string
}

func (p profile) matches(identity Identity) bool {
	return p.email == identity.Email && p.displayName == identity.DisplayName && p.avatarURL == identity.AvatarURL
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
