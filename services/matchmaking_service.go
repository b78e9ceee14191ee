package services

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// maxJoinAttempts bounds the retry-against-alternate-match loop
	// before the caller sees ErrNoMatchAvailable.
	maxJoinAttempts = 4

	// staleRetries bounds re-read-and-reapply cycles against one match
	// after a guarded write conflict.
	staleRetries = 3

	joinBackoffBase = 50 * time.Millisecond
)

// MatchmakingService orchestrates create/join/leave/cancel. It owns the
// one-active-match-per-user invariant: every entry point reconciles the
// membership index before touching any match.
type MatchmakingService struct {
	Store     MatchStore
	Lifecycle *LifecycleService
}

func NewMatchmakingService(store MatchStore, lifecycle *LifecycleService) *MatchmakingService {
	return &MatchmakingService{Store: store, Lifecycle: lifecycle}
}

// CreateMatch builds a match with two empty teams sized from the match
// type and joins the creator to team 1. Match+teams land in one write,
// the membership pointer in a second; the sweep reaps the leftovers if
// the second write never happens.
func (ms *MatchmakingService) CreateMatch(matchType, userID string) (string, error) {
	size, err := game.TeamSizeFromType(matchType)
	if err != nil {
		return "", err
	}

	if active, err := ms.CheckUserActiveMatch(userID); err != nil {
		return "", err
	} else if active != "" {
		return "", game.ErrAlreadyInMatch
	}

	match := &models.Match{
		ID:          uuid.NewString(),
		MatchType:   matchType,
		Status:      models.MatchStatusMatching,
		DurationSec: models.DefaultMatchDurationSec,
		Teams: []models.MatchTeam{
			{ID: uuid.NewString(), TeamNumber: 1, MaxPlayers: size},
			{ID: uuid.NewString(), TeamNumber: 2, MaxPlayers: size},
		},
	}
	match.Teams[0].SetPlayers([]string{userID})
	match.Teams[1].SetPlayers([]string{})

	if err := ms.Store.CreateMatch(match); err != nil {
		return "", err
	}
	if err := ms.Store.SetActiveMatch(userID, match.ID); err != nil {
		// Saga tail failed: the half-created match must not stay
		// joinable, and the creator's slot must stay free. Roll the
		// create back; if the delete fails too, the sweep reaps the
		// unreferenced match.
		log.Printf("[Matchmaking] ⚠️ Membership write failed after creating match %s: %v", match.ID, err)
		if delErr := ms.Store.DeleteMatch(match.ID); delErr != nil {
			log.Printf("[Matchmaking] ⚠️ Rollback delete of match %s failed: %v", match.ID, delErr)
		}
		return "", err
	}

	log.Printf("[Matchmaking] ➕ User %s created %s match %s", userID, matchType, match.ID)
	return match.ID, nil
}

// FindJoinable lists waiting matches of a type with at least one open
// slot. The query result is stale by construction, so full matches that
// slipped through are filtered again here and re-checked at join time.
func (ms *MatchmakingService) FindJoinable(matchType string) ([]models.Match, error) {
	waiting, err := ms.Store.QueryWaiting(matchType)
	if err != nil {
		return nil, err
	}
	joinable := make([]models.Match, 0, len(waiting))
	for _, m := range waiting {
		if !game.IsMatchFull(&m) {
			joinable = append(joinable, m)
		}
	}
	return joinable, nil
}

// JoinMatch puts the user into the requested match, or — when the last
// slot is lost to a race — into another waiting match of the same type.
// Returns the id of the match actually joined. Lost races are invisible
// to the caller until the retry budget runs out (ErrNoMatchAvailable).
func (ms *MatchmakingService) JoinMatch(matchID, userID string) (string, error) {
	if active, err := ms.CheckUserActiveMatch(userID); err != nil {
		return "", err
	} else if active != "" {
		if active == matchID {
			return matchID, nil
		}
		return "", game.ErrAlreadyInMatch
	}

	target := matchID
	var matchType string

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		if attempt > 0 {
			// Jittered backoff before hitting the next candidate.
			time.Sleep(joinBackoffBase + time.Duration(rand.Intn(50))*time.Millisecond)
		}

		joined, mt, err := ms.joinOnce(target, userID)
		if err == nil {
			return joined, nil
		}
		if !errors.Is(err, game.ErrCapacityExceeded) && !errors.Is(err, game.ErrMatchNotFound) {
			return "", err
		}
		if mt != "" {
			matchType = mt
		}
		if matchType == "" {
			// Requested match vanished before we ever read it; nothing
			// to search alternates by.
			return "", err
		}

		next, err := ms.nextCandidate(matchType, target, userID)
		if err != nil {
			return "", err
		}
		if next == "" {
			return "", game.ErrNoMatchAvailable
		}
		target = next
	}

	return "", game.ErrNoMatchAvailable
}

// joinOnce runs one read-pick-apply-write cycle against a single match,
// absorbing guarded-write conflicts with a bounded re-read loop.
func (ms *MatchmakingService) joinOnce(matchID, userID string) (string, string, error) {
	matchType := ""
	for retry := 0; retry <= staleRetries; retry++ {
		match, err := ms.Store.ReadMatch(matchID)
		if err != nil {
			return "", matchType, err
		}
		matchType = match.MatchType

		if match.Status != models.MatchStatusMatching {
			return "", matchType, game.ErrCapacityExceeded
		}
		team := game.PickTeamToJoin(match, userID)
		if team == nil {
			return "", matchType, game.ErrCapacityExceeded
		}

		expected := team.CurrentPlayers
		updated, err := game.ApplyJoin(*team, userID)
		if err != nil {
			return "", matchType, err
		}

		err = ms.Store.UpdateTeamPlayers(&updated, expected)
		if errors.Is(err, game.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return "", matchType, err
		}

		if err := ms.Store.SetActiveMatch(userID, matchID); err != nil {
			log.Printf("[Matchmaking] ⚠️ Membership write failed after join of %s by %s: %v", matchID, userID, err)
			return "", matchType, err
		}

		log.Printf("[Matchmaking] 👥 User %s joined team %d of match %s", userID, updated.TeamNumber, matchID)

		if err := ms.Lifecycle.TryStartMatch(matchID); err != nil {
			log.Printf("[Matchmaking] ⚠️ Start check for match %s failed: %v", matchID, err)
		}
		return matchID, matchType, nil
	}
	return "", matchType, game.ErrCapacityExceeded
}

// nextCandidate picks the oldest joinable match of the type, skipping
// the one just lost.
func (ms *MatchmakingService) nextCandidate(matchType, skipID, userID string) (string, error) {
	candidates, err := ms.FindJoinable(matchType)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if c.ID == skipID || c.TeamOfPlayer(userID) != nil {
			continue
		}
		return c.ID, nil
	}
	return "", nil
}

// LeaveMatch removes the user from a still-matching match. The last
// player out deletes the match entirely; leaving a playing match is
// rejected (forfeits are not a thing here).
func (ms *MatchmakingService) LeaveMatch(matchID, userID string) error {
	for retry := 0; retry <= staleRetries; retry++ {
		match, err := ms.Store.ReadMatch(matchID)
		if err != nil {
			return err
		}

		switch match.Status {
		case models.MatchStatusMatching:
		case models.MatchStatusPlaying:
			return game.ErrMatchInProgress
		default:
			return game.ErrMatchNotFound
		}

		team := match.TeamOfPlayer(userID)
		if team == nil {
			return game.ErrMemberNotFound
		}

		expected := team.CurrentPlayers
		updated, err := game.ApplyLeave(*team, userID)
		if err != nil {
			return err
		}

		if match.TotalPlayers() == 1 {
			// Last player out: the match never got going, drop it.
			if err := ms.Store.DeleteMatch(matchID); err != nil {
				return err
			}
			if err := ms.Store.ClearActiveMatch(userID); err != nil {
				return err
			}
			log.Printf("[Matchmaking] 🗑 Match %s deleted after last player %s left", matchID, userID)
			return nil
		}

		err = ms.Store.UpdateTeamPlayers(&updated, expected)
		if errors.Is(err, game.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return err
		}
		if err := ms.Store.ClearActiveMatch(userID); err != nil {
			return err
		}
		log.Printf("[Matchmaking] 👋 User %s left match %s", userID, matchID)
		return nil
	}
	return game.ErrStaleWrite
}

// CancelMatch is the caller-facing composite of leave + conditional
// delete. The UI never needs the intermediate state, so it is one op.
func (ms *MatchmakingService) CancelMatch(matchID, userID string) error {
	log.Printf("[Matchmaking] ❌ User %s cancelling match %s", userID, matchID)
	return ms.LeaveMatch(matchID, userID)
}

// CheckUserActiveMatch resolves the user's current active match from
// the membership index, never from anything client-cached. A pointer at
// a finished or vanished match is cleared on the way through.
func (ms *MatchmakingService) CheckUserActiveMatch(userID string) (string, error) {
	matchID, err := ms.Store.ActiveMatch(userID)
	if err != nil {
		return "", err
	}
	if matchID == "" {
		return "", nil
	}

	match, err := ms.Store.ReadMatch(matchID)
	if errors.Is(err, game.ErrMatchNotFound) {
		_ = ms.Store.ClearActiveMatch(userID)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !match.IsActive() {
		_ = ms.Store.ClearActiveMatch(userID)
		return "", nil
	}
	return matchID, nil
}

// ---- HTTP handlers ----

type createMatchRequest struct {
	MatchType string `json:"match_type"`
}

func (ms *MatchmakingService) CreateMatchHandler(c *fiber.Ctx) error {
	var req createMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	userID := c.Locals("user_id").(string)

	matchID, err := ms.CreateMatch(req.MatchType, userID)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"match_id": matchID})
}

func (ms *MatchmakingService) JoinMatchHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	matchID, err := ms.JoinMatch(c.Params("id"), userID)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"match_id": matchID})
}

func (ms *MatchmakingService) LeaveMatchHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := ms.LeaveMatch(c.Params("id"), userID); err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "left match"})
}

func (ms *MatchmakingService) CancelMatchHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := ms.CancelMatch(c.Params("id"), userID); err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "match cancelled"})
}

func (ms *MatchmakingService) FindJoinableHandler(c *fiber.Ctx) error {
	matchType := c.Query("type")
	if matchType == "" {
		return c.Status(400).JSON(fiber.Map{"error": "type query parameter required"})
	}
	matches, err := ms.FindJoinable(matchType)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches, "count": len(matches)})
}

func (ms *MatchmakingService) ActiveMatchHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	matchID, err := ms.CheckUserActiveMatch(userID)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	if matchID == "" {
		return c.JSON(fiber.Map{"match_id": nil, "active": false})
	}
	return c.JSON(fiber.Map{"match_id": matchID, "active": true})
}

func (ms *MatchmakingService) GetMatchHandler(c *fiber.Ctx) error {
	match, err := ms.Store.ReadMatch(c.Params("id"))
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(newMatchView(match, time.Now().UTC()))
}

func (ms *MatchmakingService) MatchHistoryHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	matches, err := ms.Store.ListUserMatchHistory(userID)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches, "count": len(matches)})
}
