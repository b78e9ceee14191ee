package models

import (
	"time"

	"gorm.io/gorm"
)

// MatchUser is a local snapshot of profile data needed for match display
// (nicknames and avatars next to scores). Owned solely by the match
// service; populated by the profile sync worker from the profile service.
type MatchUser struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Nickname       string  `gorm:"index;not null" json:"nickname"`
	DisplayName    string  `json:"display_name"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
