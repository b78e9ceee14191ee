package services

import (
	"sync"
	"testing"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatchmaking() (*fakeMatchStore, *MatchmakingService) {
	fake := newFakeMatchStore()
	lifecycle := NewLifecycleService(fake)
	return fake, NewMatchmakingService(fake, lifecycle)
}

func TestCreateMatch_CreatorJoinsTeamOne(t *testing.T) {
	fake, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	match, err := fake.ReadMatch(matchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusMatching, match.Status)
	assert.Equal(t, []string{"u1"}, match.TeamByNumber(1).Players())
	assert.Equal(t, 1, match.TeamByNumber(1).CurrentPlayers)
	assert.Equal(t, 0, match.TeamByNumber(2).CurrentPlayers)
	assert.Equal(t, 2, match.TeamByNumber(1).MaxPlayers)

	active, err := fake.ActiveMatch("u1")
	require.NoError(t, err)
	assert.Equal(t, matchID, active)
}

func TestCreateMatch_InvalidType(t *testing.T) {
	_, ms := newTestMatchmaking()

	_, err := ms.CreateMatch("2v3", "u1")
	assert.ErrorIs(t, err, game.ErrInvalidMatchType)
}

func TestCreateMatch_RejectedWhileInAnotherMatch(t *testing.T) {
	_, ms := newTestMatchmaking()

	_, err := ms.CreateMatch("1v1", "u1")
	require.NoError(t, err)

	_, err = ms.CreateMatch("1v1", "u1")
	assert.ErrorIs(t, err, game.ErrAlreadyInMatch)
}

func TestJoinMatch_FillsTeamsAndStarts(t *testing.T) {
	fake, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	joined, err := ms.JoinMatch(matchID, "u2")
	require.NoError(t, err)
	assert.Equal(t, matchID, joined)

	match, _ := fake.ReadMatch(matchID)
	assert.Equal(t, []string{"u1", "u2"}, match.TeamByNumber(1).Players())
	assert.Equal(t, models.MatchStatusMatching, match.Status)

	_, err = ms.JoinMatch(matchID, "u3")
	require.NoError(t, err)
	match, _ = fake.ReadMatch(matchID)
	assert.Equal(t, []string{"u3"}, match.TeamByNumber(2).Players())
	assert.Equal(t, models.MatchStatusMatching, match.Status)

	_, err = ms.JoinMatch(matchID, "u4")
	require.NoError(t, err)
	match, _ = fake.ReadMatch(matchID)
	assert.Equal(t, models.MatchStatusPlaying, match.Status)
	require.NotNil(t, match.StartedAt)
	assert.Equal(t, 4, match.TotalPlayers())

	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		active, _ := fake.ActiveMatch(user)
		assert.Equal(t, matchID, active, "user %s", user)
	}
}

func TestJoinMatch_RejoinOwnMatchIsNoop(t *testing.T) {
	_, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	joined, err := ms.JoinMatch(matchID, "u1")
	require.NoError(t, err)
	assert.Equal(t, matchID, joined)
}

func TestJoinMatch_WhileInOtherMatch(t *testing.T) {
	_, ms := newTestMatchmaking()

	_, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)
	otherID, err := ms.CreateMatch("2v2", "u2")
	require.NoError(t, err)

	_, err = ms.JoinMatch(otherID, "u1")
	assert.ErrorIs(t, err, game.ErrAlreadyInMatch)
}

func TestJoinMatch_RaceForLastSlot(t *testing.T) {
	fake, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("1v1", "u1")
	require.NoError(t, err)

	results := make(map[string]error, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, user := range []string{"u2", "u3"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := ms.JoinMatch(matchID, user)
			mu.Lock()
			results[user] = err
			mu.Unlock()
		}(user)
	}
	wg.Wait()

	winners := 0
	for user, err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, game.ErrNoMatchAvailable, "loser %s", user)
	}
	assert.Equal(t, 1, winners, "exactly one joiner takes the last slot")

	match, _ := fake.ReadMatch(matchID)
	assert.Equal(t, models.MatchStatusPlaying, match.Status)
	assert.Equal(t, 1, match.TeamByNumber(2).CurrentPlayers)
	assert.Len(t, match.TeamByNumber(2).Players(), 1)
}

func TestJoinMatch_FallsBackToAlternate(t *testing.T) {
	fake, ms := newTestMatchmaking()

	firstID, err := ms.CreateMatch("1v1", "u1")
	require.NoError(t, err)
	secondID, err := ms.CreateMatch("1v1", "u2")
	require.NoError(t, err)

	// u3 takes the only open slot of the first match.
	_, err = ms.JoinMatch(firstID, "u3")
	require.NoError(t, err)

	// u4 asked for the first match but lands in the second.
	joined, err := ms.JoinMatch(firstID, "u4")
	require.NoError(t, err)
	assert.Equal(t, secondID, joined)

	second, _ := fake.ReadMatch(secondID)
	assert.Equal(t, []string{"u4"}, second.TeamByNumber(2).Players())
}

func TestJoinMatch_NoAlternateLeft(t *testing.T) {
	_, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("1v1", "u1")
	require.NoError(t, err)
	_, err = ms.JoinMatch(matchID, "u2")
	require.NoError(t, err)

	_, err = ms.JoinMatch(matchID, "u3")
	assert.ErrorIs(t, err, game.ErrNoMatchAvailable)
}

func TestLeaveMatch_LastPlayerDeletesMatch(t *testing.T) {
	fake, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	require.NoError(t, ms.LeaveMatch(matchID, "u1"))

	_, err = fake.ReadMatch(matchID)
	assert.ErrorIs(t, err, game.ErrMatchNotFound)

	active, _ := fake.ActiveMatch("u1")
	assert.Empty(t, active)
}

func TestLeaveMatch_ReopensSlot(t *testing.T) {
	fake, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)
	_, err = ms.JoinMatch(matchID, "u2")
	require.NoError(t, err)

	require.NoError(t, ms.LeaveMatch(matchID, "u2"))

	match, _ := fake.ReadMatch(matchID)
	assert.Equal(t, []string{"u1"}, match.TeamByNumber(1).Players())
	assert.Equal(t, models.MatchStatusMatching, match.Status)

	active, _ := fake.ActiveMatch("u2")
	assert.Empty(t, active)

	// The freed slot is joinable again.
	_, err = ms.JoinMatch(matchID, "u5")
	require.NoError(t, err)
}

func TestLeaveMatch_RejectedWhilePlaying(t *testing.T) {
	fake, ms := newTestMatchmaking()
	match := seedMatch(fake, models.MatchStatusPlaying, "1v1", 1, []string{"u1"}, []string{"u2"})

	err := ms.LeaveMatch(match.ID, "u1")
	assert.ErrorIs(t, err, game.ErrMatchInProgress)
}

func TestLeaveMatch_NonMember(t *testing.T) {
	_, ms := newTestMatchmaking()

	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	err = ms.LeaveMatch(matchID, "stranger")
	assert.ErrorIs(t, err, game.ErrMemberNotFound)
}

func TestLeaveMatch_FinishedMatch(t *testing.T) {
	fake, ms := newTestMatchmaking()
	match := seedMatch(fake, models.MatchStatusFinished, "1v1", 1, []string{"u1"}, []string{"u2"})

	err := ms.LeaveMatch(match.ID, "u1")
	assert.ErrorIs(t, err, game.ErrMatchNotFound)
}

func TestFindJoinable_FiltersFullMatches(t *testing.T) {
	fake, ms := newTestMatchmaking()

	openID, err := ms.CreateMatch("1v1", "u1")
	require.NoError(t, err)
	// Full but still in matching state, as if the start flip lost a race.
	seedMatch(fake, models.MatchStatusMatching, "1v1", 1, []string{"u2"}, []string{"u3"})
	seedMatch(fake, models.MatchStatusPlaying, "1v1", 1, []string{"u4"}, []string{"u5"})

	joinable, err := ms.FindJoinable("1v1")
	require.NoError(t, err)
	require.Len(t, joinable, 1)
	assert.Equal(t, openID, joinable[0].ID)
}

func TestCheckUserActiveMatch_ClearsDanglingPointer(t *testing.T) {
	fake, ms := newTestMatchmaking()

	require.NoError(t, fake.SetActiveMatch("u1", "gone-match"))

	active, err := ms.CheckUserActiveMatch("u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	stored, _ := fake.ActiveMatch("u1")
	assert.Empty(t, stored, "dangling pointer removed")
}

func TestCheckUserActiveMatch_ClearsFinishedPointer(t *testing.T) {
	fake, ms := newTestMatchmaking()
	match := seedMatch(fake, models.MatchStatusFinished, "1v1", 1, []string{"u1"}, []string{"u2"})
	require.NoError(t, fake.SetActiveMatch("u1", match.ID))

	active, err := ms.CheckUserActiveMatch("u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	stored, _ := fake.ActiveMatch("u1")
	assert.Empty(t, stored)
}

func TestCreateMatch_MembershipWriteFailureRollsBack(t *testing.T) {
	fake, ms := newTestMatchmaking()
	fake.failSetActive = true

	_, err := ms.CreateMatch("2v2", "u1")
	assert.ErrorIs(t, err, game.ErrStoreUnavailable)

	// The half-created match is rolled back, not left joinable.
	waiting, _ := fake.QueryWaiting("2v2")
	assert.Empty(t, waiting)

	// The creator's slot stayed free.
	fake.failSetActive = false
	matchID, err := ms.CreateMatch("2v2", "u1")
	require.NoError(t, err)

	waiting, _ = fake.QueryWaiting("2v2")
	require.Len(t, waiting, 1)
	assert.Equal(t, matchID, waiting[0].ID)
	assert.Equal(t, []string{"u1"}, waiting[0].TeamByNumber(1).Players())
}
