// Package game holds the pure match rules: team capacity accounting,
// match-type parsing and winner determination. No I/O happens here;
// callers re-check every decision under the store's optimistic-write
// discipline before persisting it.
package game

import (
	"strconv"
	"strings"

	"treasure-match-engine/models"
)

// TeamSizeFromType parses a match type label ("2v2" -> 2). Both sides
// must name the same size.
func TeamSizeFromType(matchType string) (int, error) {
	parts := strings.Split(strings.ToLower(matchType), "v")
	if len(parts) != 2 || parts[0] != parts[1] {
		return 0, ErrInvalidMatchType
	}
	size, err := strconv.Atoi(parts[0])
	if err != nil || size < 1 {
		return 0, ErrInvalidMatchType
	}
	return size, nil
}

// CanJoin reports whether the team has a free slot and the user is not
// already on it.
func CanJoin(team *models.MatchTeam, userID string) bool {
	if team.CurrentPlayers >= team.MaxPlayers {
		return false
	}
	return !team.HasPlayer(userID)
}

// PickTeamToJoin returns the team the user should join. Team 1 always
// fills before team 2 when both have room, so placement is deterministic.
// Returns nil when both teams are full or the user is already a member
// of the open one.
func PickTeamToJoin(match *models.Match, userID string) *models.MatchTeam {
	if match.TeamOfPlayer(userID) != nil {
		return nil
	}
	for _, n := range []int{1, 2} {
		team := match.TeamByNumber(n)
		if team != nil && CanJoin(team, userID) {
			return team
		}
	}
	return nil
}

// ApplyJoin returns a copy of the team with the user added. The caller
// persists the result with a guarded write keyed on the old
// CurrentPlayers value, and re-runs the whole read-apply-write cycle on
// conflict rather than trusting any cached team state.
func ApplyJoin(team models.MatchTeam, userID string) (models.MatchTeam, error) {
	if !CanJoin(&team, userID) {
		return team, ErrCapacityExceeded
	}
	team.SetPlayers(append(team.Players(), userID))
	return team, nil
}

// ApplyLeave returns a copy of the team with the user removed.
func ApplyLeave(team models.MatchTeam, userID string) (models.MatchTeam, error) {
	players := team.Players()
	for i, p := range players {
		if p == userID {
			team.SetPlayers(append(players[:i:i], players[i+1:]...))
			return team, nil
		}
	}
	return team, ErrMemberNotFound
}

// IsMatchFull reports whether both teams are at capacity. This is the
// trigger for the matching -> playing transition.
func IsMatchFull(match *models.Match) bool {
	if len(match.Teams) < 2 {
		return false
	}
	for i := range match.Teams {
		if match.Teams[i].CurrentPlayers < match.Teams[i].MaxPlayers {
			return false
		}
	}
	return true
}

// Winner picks the winning team id: strictly higher score wins, ties go
// to the lower team number. Pure over the team scores, so re-running
// settlement from the same discoveries always names the same winner.
func Winner(match *models.Match) string {
	team1 := match.TeamByNumber(1)
	team2 := match.TeamByNumber(2)
	if team1 == nil || team2 == nil {
		return ""
	}
	if team2.Score > team1.Score {
		return team2.ID
	}
	return team1.ID
}
