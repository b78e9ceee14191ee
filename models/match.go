package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Match statuses. Transitions are monotonic: a match never returns to
// matching once it has left it, and finished/cancelled are absorbing.
const (
	MatchStatusMatching  = "matching"
	MatchStatusPlaying   = "playing"
	MatchStatusFinished  = "finished"
	MatchStatusCancelled = "cancelled"
)

// DefaultMatchDurationSec is the auto-end horizon for a playing match (1 hour).
const DefaultMatchDurationSec = 3600

// Match is one team-vs-team treasure hunt session. It owns exactly two teams.
type Match struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchType string `gorm:"index;not null" json:"match_type"` // e.g. "1v1", "2v2", "5v5"
	Status    string `gorm:"index;not null;default:'matching'" json:"status"`

	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	WinningTeamID *string    `gorm:"type:uuid" json:"winning_team_id,omitempty"`
	DurationSec   int        `json:"duration_sec" gorm:"default:3600"`

	Teams []MatchTeam `json:"teams,omitempty" gorm:"foreignKey:MatchID"`

	Timestamps
}

// MatchTeam is one of the two sides of a match. CurrentPlayers must equal
// the number of entries in PlayersJSON at all times.
type MatchTeam struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID    string `gorm:"index;not null;type:uuid" json:"match_id"`
	TeamNumber int    `gorm:"not null" json:"team_number"` // 1 or 2

	MaxPlayers     int `gorm:"not null" json:"max_players"`
	CurrentPlayers int `gorm:"not null;default:0" json:"current_players"`
	Score          int `gorm:"not null;default:0" json:"score"`

	// JSON array of user ids (stored as jsonb text, decoded on demand)
	PlayersJSON string `gorm:"type:jsonb;default:'[]'" json:"-"`

	Timestamps
}

// Players decodes the member list. A corrupt column reads as empty; the
// reconciliation sweep surfaces the mismatch against CurrentPlayers.
func (t *MatchTeam) Players() []string {
	var players []string
	if err := json.Unmarshal([]byte(t.PlayersJSON), &players); err != nil {
		return nil
	}
	return players
}

// SetPlayers encodes the member list and keeps CurrentPlayers in step.
func (t *MatchTeam) SetPlayers(players []string) {
	raw, _ := json.Marshal(players)
	t.PlayersJSON = string(raw)
	t.CurrentPlayers = len(players)
}

// HasPlayer reports whether userID is on this team.
func (t *MatchTeam) HasPlayer(userID string) bool {
	for _, p := range t.Players() {
		if p == userID {
			return true
		}
	}
	return false
}

// TeamByNumber returns the owned team with the given team number, or nil.
func (m *Match) TeamByNumber(n int) *MatchTeam {
	for i := range m.Teams {
		if m.Teams[i].TeamNumber == n {
			return &m.Teams[i]
		}
	}
	return nil
}

// TeamByID returns the owned team with the given id, or nil.
func (m *Match) TeamByID(id string) *MatchTeam {
	for i := range m.Teams {
		if m.Teams[i].ID == id {
			return &m.Teams[i]
		}
	}
	return nil
}

// TeamOfPlayer returns the team userID belongs to, or nil.
func (m *Match) TeamOfPlayer(userID string) *MatchTeam {
	for i := range m.Teams {
		if m.Teams[i].HasPlayer(userID) {
			return &m.Teams[i]
		}
	}
	return nil
}

// TotalPlayers counts members across both teams.
func (m *Match) TotalPlayers() int {
	total := 0
	for i := range m.Teams {
		total += m.Teams[i].CurrentPlayers
	}
	return total
}

// IsActive reports whether the match still occupies its members'
// one-active-match slot.
func (m *Match) IsActive() bool {
	return m.Status == MatchStatusMatching || m.Status == MatchStatusPlaying
}

// RemainingSeconds is the derived countdown for display. Never negative,
// zero when the match is not playing.
func (m *Match) RemainingSeconds(now time.Time) int {
	if m.Status != MatchStatusPlaying || m.StartedAt == nil {
		return 0
	}
	remaining := m.DurationSec - int(now.Sub(*m.StartedAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Deadline is the instant the auto-end fires. Zero time while not started.
func (m *Match) Deadline() time.Time {
	if m.StartedAt == nil {
		return time.Time{}
	}
	return m.StartedAt.Add(time.Duration(m.DurationSec) * time.Second)
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
