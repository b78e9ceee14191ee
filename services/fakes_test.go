package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/google/uuid"
)

// fakeMatchStore is an in-memory MatchStore with the same conditional
// write semantics as the real adapter: guarded team updates fail with
// ErrStaleWrite on a counter mismatch, status transitions only apply
// when the current status matches.
type fakeMatchStore struct {
	mu          sync.Mutex
	matches     map[string]*models.Match
	memberships map[string]string
	discoveries []models.MatchDiscovery
	seq         int

	failSetActive bool
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		matches:     make(map[string]*models.Match),
		memberships: make(map[string]string),
	}
}

func cloneMatch(m *models.Match) *models.Match {
	clone := *m
	clone.Teams = make([]models.MatchTeam, len(m.Teams))
	copy(clone.Teams, m.Teams)
	return &clone
}

func applyMatchPatch(m *models.Match, patch map[string]interface{}) {
	for key, value := range patch {
		switch key {
		case "status":
			m.Status = value.(string)
		case "started_at":
			t := value.(time.Time)
			m.StartedAt = &t
		case "ended_at":
			t := value.(time.Time)
			m.EndedAt = &t
		case "winning_team_id":
			id := value.(string)
			m.WinningTeamID = &id
		}
	}
}

func (f *fakeMatchStore) CreateMatch(m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	clone := cloneMatch(m)
	clone.CreatedAt = time.Unix(int64(f.seq), 0)
	for i := range clone.Teams {
		clone.Teams[i].MatchID = clone.ID
	}
	f.matches[clone.ID] = clone
	return nil
}

func (f *fakeMatchStore) ReadMatch(id string) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.matches[id]
	if !ok {
		return nil, game.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (f *fakeMatchStore) QueryWaiting(matchType string) ([]models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var waiting []models.Match
	for _, m := range f.matches {
		if m.Status == models.MatchStatusMatching && m.MatchType == matchType {
			waiting = append(waiting, *cloneMatch(m))
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	return waiting, nil
}

func (f *fakeMatchStore) WriteMatchFields(id string, patch map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.matches[id]
	if !ok {
		return fmt.Errorf("%w: match %s", game.ErrMatchNotFound, id)
	}
	applyMatchPatch(m, patch)
	return nil
}

func (f *fakeMatchStore) UpdateTeamPlayers(team *models.MatchTeam, expectedPlayers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.matches {
		for i := range m.Teams {
			if m.Teams[i].ID != team.ID {
				continue
			}
			if m.Teams[i].CurrentPlayers != expectedPlayers {
				return game.ErrStaleWrite
			}
			m.Teams[i].PlayersJSON = team.PlayersJSON
			m.Teams[i].CurrentPlayers = team.CurrentPlayers
			return nil
		}
	}
	return game.ErrStaleWrite
}

func (f *fakeMatchStore) TransitionStatus(matchID, from, to string, patch map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.matches[matchID]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	applyMatchPatch(m, patch)
	return true, nil
}

func (f *fakeMatchStore) DeleteMatch(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.matches, id)
	return nil
}

func (f *fakeMatchStore) IncrementTeamScore(teamID string, points int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.matches {
		for i := range m.Teams {
			if m.Teams[i].ID == teamID {
				m.Teams[i].Score += points
				return nil
			}
		}
	}
	return nil
}

func (f *fakeMatchStore) CreateDiscovery(d *models.MatchDiscovery) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.discoveries = append(f.discoveries, *d)
	return nil
}

func (f *fakeMatchStore) ListDiscoveries(matchID string) ([]models.MatchDiscovery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.MatchDiscovery
	for _, d := range f.discoveries {
		if d.MatchID == matchID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (f *fakeMatchStore) SetActiveMatch(userID, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSetActive {
		return fmt.Errorf("%w: membership write refused", game.ErrStoreUnavailable)
	}
	f.memberships[userID] = matchID
	return nil
}

func (f *fakeMatchStore) ActiveMatch(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.memberships[userID], nil
}

func (f *fakeMatchStore) ClearActiveMatch(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.memberships, userID)
	return nil
}

func (f *fakeMatchStore) ClearMatchMemberships(matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for user, match := range f.memberships {
		if match == matchID {
			delete(f.memberships, user)
		}
	}
	return nil
}

func (f *fakeMatchStore) ListMemberships() ([]models.UserActiveMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.UserActiveMatch
	for user, match := range f.memberships {
		out = append(out, models.UserActiveMatch{UserID: user, MatchID: match})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeMatchStore) ListByStatus(status string) ([]models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Match
	for _, m := range f.matches {
		if m.Status == status {
			out = append(out, *cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMatchStore) ListUserMatchHistory(userID string) ([]models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Match
	for _, m := range f.matches {
		if m.Status == models.MatchStatusFinished && m.TeamOfPlayer(userID) != nil {
			out = append(out, *cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// seedMatch installs a match with the given rosters straight into the
// fake, bypassing the matchmaking path. Members of active matches get
// their membership pointer set the way the real flow would.
func seedMatch(f *fakeMatchStore, status, matchType string, size int, team1, team2 []string) *models.Match {
	match := &models.Match{
		ID:          uuid.NewString(),
		MatchType:   matchType,
		Status:      status,
		DurationSec: models.DefaultMatchDurationSec,
		Teams: []models.MatchTeam{
			{ID: uuid.NewString(), TeamNumber: 1, MaxPlayers: size},
			{ID: uuid.NewString(), TeamNumber: 2, MaxPlayers: size},
		},
	}
	match.Teams[0].SetPlayers(team1)
	match.Teams[1].SetPlayers(team2)
	if status == models.MatchStatusPlaying {
		now := time.Now().UTC()
		match.StartedAt = &now
	}
	_ = f.CreateMatch(match)
	if match.IsActive() {
		for _, user := range append(append([]string{}, team1...), team2...) {
			_ = f.SetActiveMatch(user, match.ID)
		}
	}
	return match
}
