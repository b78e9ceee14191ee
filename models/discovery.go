package models

import "time"

// MatchDiscovery records a player finding a treasure while a match is
// playing. Rows are append-only and never mutated; team scores and
// per-user individual scores are aggregates over them.
type MatchDiscovery struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID string `gorm:"index;not null;type:uuid" json:"match_id"`
	TeamID  string `gorm:"index;not null;type:uuid" json:"team_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`

	TreasureRef string    `gorm:"not null" json:"treasure_ref"`
	Points      int       `gorm:"not null" json:"points"`
	OccurredAt  time.Time `gorm:"not null" json:"occurred_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
