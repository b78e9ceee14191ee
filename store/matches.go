// Package store is the only layer that touches the database for match
// state. Everything capacity-affecting goes through guarded updates
// (optimistic concurrency); there is no cross-table transaction between
// the match/team writes and the membership index — callers sequence
// those as a saga and the reconciliation sweep repairs the gaps.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchStore struct {
	DB *gorm.DB
}

func NewMatchStore(db *gorm.DB) *MatchStore {
	return &MatchStore{DB: db}
}

// CreateMatch inserts the match together with its two teams.
func (s *MatchStore) CreateMatch(m *models.Match) error {
	if err := s.DB.Create(m).Error; err != nil {
		return fmt.Errorf("%w: create match: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// ReadMatch loads the match with both teams, team 1 first.
func (s *MatchStore) ReadMatch(id string) (*models.Match, error) {
	var match models.Match
	err := s.DB.Preload("Teams", func(db *gorm.DB) *gorm.DB {
		return db.Order("team_number ASC")
	}).First(&match, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, game.ErrMatchNotFound
		}
		return nil, fmt.Errorf("%w: read match: %v", game.ErrStoreUnavailable, err)
	}
	return &match, nil
}

// QueryWaiting lists matches of the given type still in matching state,
// oldest first. Callers re-filter for capacity; the result is already
// stale by the time it is read.
func (s *MatchStore) QueryWaiting(matchType string) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.Preload("Teams", func(db *gorm.DB) *gorm.DB {
		return db.Order("team_number ASC")
	}).Where("status = ? AND match_type = ?", models.MatchStatusMatching, matchType).
		Order("created_at ASC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query waiting: %v", game.ErrStoreUnavailable, err)
	}
	return matches, nil
}

// WriteMatchFields applies a partial update to the match row.
func (s *MatchStore) WriteMatchFields(id string, patch map[string]interface{}) error {
	if err := s.DB.Model(&models.Match{}).Where("id = ?", id).Updates(patch).Error; err != nil {
		return fmt.Errorf("%w: write match fields: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdateTeamPlayers persists a new member list, guarded on the
// CurrentPlayers value the caller read. A concurrent join/leave makes
// the guard miss and the caller gets ErrStaleWrite to re-read and retry.
func (s *MatchStore) UpdateTeamPlayers(team *models.MatchTeam, expectedPlayers int) error {
	res := s.DB.Model(&models.MatchTeam{}).
		Where("id = ? AND current_players = ?", team.ID, expectedPlayers).
		Updates(map[string]interface{}{
			"current_players": team.CurrentPlayers,
			"players_json":    team.PlayersJSON,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: update team players: %v", game.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return game.ErrStaleWrite
	}
	return nil
}

// TransitionStatus flips the match status, but only from the expected
// prior state. Returns false when another writer already moved it —
// that makes duplicate matching->playing triggers collapse into one.
func (s *MatchStore) TransitionStatus(matchID, from, to string, patch map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range patch {
		updates[k] = v
	}
	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%w: transition %s->%s: %v", game.ErrStoreUnavailable, from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteMatch hard-deletes the match and its teams. Only matches that
// never left the matching state are deleted; finished matches are kept
// for settlement history.
func (s *MatchStore) DeleteMatch(id string) error {
	if err := s.DB.Unscoped().Where("match_id = ?", id).Delete(&models.MatchTeam{}).Error; err != nil {
		return fmt.Errorf("%w: delete teams: %v", game.ErrStoreUnavailable, err)
	}
	if err := s.DB.Unscoped().Where("id = ?", id).Delete(&models.Match{}).Error; err != nil {
		return fmt.Errorf("%w: delete match: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// IncrementTeamScore adds points to the team aggregate in one statement,
// so concurrent discoveries never lose an increment.
func (s *MatchStore) IncrementTeamScore(teamID string, points int) error {
	err := s.DB.Model(&models.MatchTeam{}).Where("id = ?", teamID).
		UpdateColumn("score", gorm.Expr("score + ?", points)).Error
	if err != nil {
		return fmt.Errorf("%w: increment score: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// CreateDiscovery appends one immutable discovery event.
func (s *MatchStore) CreateDiscovery(d *models.MatchDiscovery) error {
	if err := s.DB.Create(d).Error; err != nil {
		return fmt.Errorf("%w: create discovery: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// ListDiscoveries returns the event log for a match in occurrence order.
func (s *MatchStore) ListDiscoveries(matchID string) ([]models.MatchDiscovery, error) {
	var discoveries []models.MatchDiscovery
	err := s.DB.Where("match_id = ?", matchID).
		Order("occurred_at ASC").
		Find(&discoveries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list discoveries: %v", game.ErrStoreUnavailable, err)
	}
	return discoveries, nil
}

// SetActiveMatch points the membership index at matchID for the user.
func (s *MatchStore) SetActiveMatch(userID, matchID string) error {
	entry := models.UserActiveMatch{UserID: userID, MatchID: matchID}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"match_id", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("%w: set active match: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// ActiveMatch returns the user's current match id, or "" when the user
// is not queued or playing anywhere.
func (s *MatchStore) ActiveMatch(userID string) (string, error) {
	var entry models.UserActiveMatch
	err := s.DB.First(&entry, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: read active match: %v", game.ErrStoreUnavailable, err)
	}
	return entry.MatchID, nil
}

// ClearActiveMatch removes the user's membership pointer.
func (s *MatchStore) ClearActiveMatch(userID string) error {
	if err := s.DB.Delete(&models.UserActiveMatch{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("%w: clear active match: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// ClearMatchMemberships drops every membership pointer at the match.
// Used at settlement and by the sweep when it reaps orphans.
func (s *MatchStore) ClearMatchMemberships(matchID string) error {
	if err := s.DB.Delete(&models.UserActiveMatch{}, "match_id = ?", matchID).Error; err != nil {
		return fmt.Errorf("%w: clear match memberships: %v", game.ErrStoreUnavailable, err)
	}
	return nil
}

// ListMemberships returns the whole membership index. The sweep walks
// it to clear pointers left behind by failed multi-step mutations.
func (s *MatchStore) ListMemberships() ([]models.UserActiveMatch, error) {
	var entries []models.UserActiveMatch
	if err := s.DB.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("%w: list memberships: %v", game.ErrStoreUnavailable, err)
	}
	return entries, nil
}

// ListByStatus returns every match currently in the given status. The
// reconciliation sweep filters these in memory.
func (s *MatchStore) ListByStatus(status string) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.Preload("Teams", func(db *gorm.DB) *gorm.DB {
		return db.Order("team_number ASC")
	}).Where("status = ?", status).Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list by status: %v", game.ErrStoreUnavailable, err)
	}
	return matches, nil
}

// ListUserMatchHistory returns finished matches the user played in,
// newest first. Membership is recovered from the frozen team rosters.
func (s *MatchStore) ListUserMatchHistory(userID string) ([]models.Match, error) {
	member, _ := json.Marshal([]string{userID})
	var matches []models.Match
	err := s.DB.Preload("Teams", func(db *gorm.DB) *gorm.DB {
		return db.Order("team_number ASC")
	}).Where("status = ? AND id IN (?)",
		models.MatchStatusFinished,
		s.DB.Model(&models.MatchTeam{}).
			Select("match_id").
			Where("players_json::jsonb @> ?", string(member)),
	).Order("ended_at DESC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("%w: match history: %v", game.ErrStoreUnavailable, err)
	}
	return matches, nil
}
