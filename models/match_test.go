package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTeam_PlayersRoundTrip(t *testing.T) {
	var team MatchTeam
	team.SetPlayers([]string{"u1", "u2"})

	assert.Equal(t, `["u1","u2"]`, team.PlayersJSON)
	assert.Equal(t, 2, team.CurrentPlayers)
	assert.Equal(t, []string{"u1", "u2"}, team.Players())
	assert.True(t, team.HasPlayer("u1"))
	assert.False(t, team.HasPlayer("u3"))
}

func TestMatchTeam_CorruptRosterReadsEmpty(t *testing.T) {
	team := MatchTeam{PlayersJSON: "{not json", CurrentPlayers: 2}

	assert.Nil(t, team.Players())
	assert.False(t, team.HasPlayer("u1"))
}

func TestMatch_TeamLookups(t *testing.T) {
	match := Match{Teams: []MatchTeam{
		{ID: "t1", TeamNumber: 1},
		{ID: "t2", TeamNumber: 2},
	}}
	match.Teams[0].SetPlayers([]string{"u1"})
	match.Teams[1].SetPlayers([]string{"u2", "u3"})

	require.NotNil(t, match.TeamByNumber(2))
	assert.Equal(t, "t2", match.TeamByNumber(2).ID)
	assert.Nil(t, match.TeamByNumber(3))

	require.NotNil(t, match.TeamByID("t1"))
	assert.Nil(t, match.TeamByID("tx"))

	require.NotNil(t, match.TeamOfPlayer("u3"))
	assert.Equal(t, "t2", match.TeamOfPlayer("u3").ID)
	assert.Nil(t, match.TeamOfPlayer("u9"))

	assert.Equal(t, 3, match.TotalPlayers())
}

func TestMatch_IsActive(t *testing.T) {
	for status, active := range map[string]bool{
		MatchStatusMatching:  true,
		MatchStatusPlaying:   true,
		MatchStatusFinished:  false,
		MatchStatusCancelled: false,
	} {
		m := Match{Status: status}
		assert.Equal(t, active, m.IsActive(), "status %s", status)
	}
}

func TestMatch_RemainingSeconds(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	match := Match{
		Status:      MatchStatusPlaying,
		StartedAt:   &started,
		DurationSec: DefaultMatchDurationSec,
	}

	assert.Equal(t, 3600, match.RemainingSeconds(started))
	assert.Equal(t, 1800, match.RemainingSeconds(started.Add(30*time.Minute)))
	assert.Equal(t, 0, match.RemainingSeconds(started.Add(2*time.Hour)), "never negative")

	match.Status = MatchStatusFinished
	assert.Equal(t, 0, match.RemainingSeconds(started))

	assert.Equal(t, 0, (&Match{Status: MatchStatusPlaying}).RemainingSeconds(started))
}

func TestMatch_Deadline(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	match := Match{StartedAt: &started, DurationSec: DefaultMatchDurationSec}

	assert.Equal(t, started.Add(time.Hour), match.Deadline())
	assert.True(t, (&Match{}).Deadline().IsZero())
}
