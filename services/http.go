package services

import (
	"errors"
	"log"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/gofiber/fiber/v2"
)

// matchErrorResponse maps the typed errors onto HTTP responses. Races
// the retry loop could not absorb come out as 409s the UI can show as
// "try again"; store outages are 503s, never silent failures.
func matchErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, game.ErrMatchNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "match not found"})
	case errors.Is(err, game.ErrMemberNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "user is not a member of this match"})
	case errors.Is(err, game.ErrNoMatchAvailable):
		return c.Status(409).JSON(fiber.Map{"error": "no match available, create one or retry"})
	case errors.Is(err, game.ErrCapacityExceeded):
		return c.Status(409).JSON(fiber.Map{"error": "match is full"})
	case errors.Is(err, game.ErrAlreadyInMatch):
		return c.Status(409).JSON(fiber.Map{"error": "already in an active match"})
	case errors.Is(err, game.ErrMatchInProgress):
		return c.Status(422).JSON(fiber.Map{"error": "cannot leave a match in progress"})
	case errors.Is(err, game.ErrMatchNotPlaying):
		return c.Status(422).JSON(fiber.Map{"error": "match is not in progress"})
	case errors.Is(err, game.ErrInvalidMatchType):
		return c.Status(400).JSON(fiber.Map{"error": "invalid match type, expected e.g. 2v2"})
	case errors.Is(err, game.ErrSuspiciousMovement):
		return c.Status(422).JSON(fiber.Map{"error": "location rejected: implausible movement"})
	case errors.Is(err, game.ErrStaleWrite):
		return c.Status(409).JSON(fiber.Map{"error": "conflicting update, retry"})
	case errors.Is(err, game.ErrStoreUnavailable):
		log.Printf("❌ Store error: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "service temporarily unavailable, try again"})
	default:
		log.Printf("❌ Unexpected error: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}

// teamView is the caller-facing shape of one team.
type teamView struct {
	ID             string   `json:"id"`
	TeamNumber     int      `json:"team_number"`
	MaxPlayers     int      `json:"max_players"`
	CurrentPlayers int      `json:"current_players"`
	Score          int      `json:"score"`
	Players        []string `json:"players"`
}

// matchView is the immutable snapshot handed to callers and to SSE
// subscribers. Remaining time is derived here, never stored.
type matchView struct {
	ID               string     `json:"id"`
	MatchType        string     `json:"match_type"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	WinningTeamID    *string    `json:"winning_team_id,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
	Teams            []teamView `json:"teams"`
}

func newMatchView(m *models.Match, now time.Time) matchView {
	view := matchView{
		ID:               m.ID,
		MatchType:        m.MatchType,
		Status:           m.Status,
		CreatedAt:        m.CreatedAt,
		StartedAt:        m.StartedAt,
		EndedAt:          m.EndedAt,
		WinningTeamID:    m.WinningTeamID,
		RemainingSeconds: m.RemainingSeconds(now),
	}
	for i := range m.Teams {
		t := &m.Teams[i]
		players := t.Players()
		if players == nil {
			players = []string{}
		}
		view.Teams = append(view.Teams, teamView{
			ID:             t.ID,
			TeamNumber:     t.TeamNumber,
			MaxPlayers:     t.MaxPlayers,
			CurrentPlayers: t.CurrentPlayers,
			Score:          t.Score,
			Players:        players,
		})
	}
	return view
}
