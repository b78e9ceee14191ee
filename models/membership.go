package models

import "time"

// UserActiveMatch is the membership index: user id -> currently active
// match. At most one row per user; it is what prevents double-queuing.
// Written after the match/team write (saga order), so a row here may
// briefly point at a match that no longer exists — the reconciliation
// sweep repairs those.
type UserActiveMatch struct {
	UserID  string `gorm:"primaryKey" json:"user_id"`
	MatchID string `gorm:"index;not null;type:uuid" json:"match_id"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
