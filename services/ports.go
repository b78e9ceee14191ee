package services

import (
	"context"
	"time"

	"treasure-match-engine/models"
	"treasure-match-engine/store"
)

// MatchStore is the slice of the store adapter the services depend on.
// *store.MatchStore satisfies it; tests plug in an in-memory fake.
type MatchStore interface {
	CreateMatch(m *models.Match) error
	ReadMatch(id string) (*models.Match, error)
	QueryWaiting(matchType string) ([]models.Match, error)
	WriteMatchFields(id string, patch map[string]interface{}) error
	UpdateTeamPlayers(team *models.MatchTeam, expectedPlayers int) error
	TransitionStatus(matchID, from, to string, patch map[string]interface{}) (bool, error)
	DeleteMatch(id string) error

	IncrementTeamScore(teamID string, points int) error
	CreateDiscovery(d *models.MatchDiscovery) error
	ListDiscoveries(matchID string) ([]models.MatchDiscovery, error)

	SetActiveMatch(userID, matchID string) error
	ActiveMatch(userID string) (string, error)
	ClearActiveMatch(userID string) error
	ClearMatchMemberships(matchID string) error
	ListMemberships() ([]models.UserActiveMatch, error)

	ListByStatus(status string) ([]models.Match, error)
	ListUserMatchHistory(userID string) ([]models.Match, error)
}

// MatchFeed is the subscribe side of the store adapter.
type MatchFeed interface {
	WatchMatch(ctx context.Context, matchID string, interval time.Duration) <-chan store.MatchEvent
	WatchWaiting(ctx context.Context, matchType string, interval time.Duration) <-chan []models.Match
}
