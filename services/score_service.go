package services

import (
	"log"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"
	"treasure-match-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ScoreService aggregates discovery events into team and per-user
// scores and finalizes matches. Discovery rows are append-only, so
// concurrent recording can never corrupt history; only the team
// aggregate needs the single-statement increment.
type ScoreService struct {
	Store     MatchStore
	Lifecycle *LifecycleService
}

func NewScoreService(store MatchStore, lifecycle *LifecycleService) *ScoreService {
	return &ScoreService{Store: store, Lifecycle: lifecycle}
}

// RecordDiscovery appends one treasure find and bumps the owning team's
// score. Rejected unless the match is playing and the user is on the
// team the find is credited to.
func (ss *ScoreService) RecordDiscovery(matchID, teamID, userID, treasureRef string, points int) (*models.MatchDiscovery, error) {
	match, err := ss.Store.ReadMatch(matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusPlaying {
		return nil, game.ErrMatchNotPlaying
	}

	team := match.TeamByID(teamID)
	if team == nil {
		return nil, game.ErrMatchNotFound
	}
	if !team.HasPlayer(userID) {
		return nil, game.ErrMemberNotFound
	}

	discovery := &models.MatchDiscovery{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		TeamID:      teamID,
		UserID:      userID,
		TreasureRef: treasureRef,
		Points:      points,
		OccurredAt:  time.Now().UTC(),
	}
	if err := ss.Store.CreateDiscovery(discovery); err != nil {
		return nil, err
	}
	if err := ss.Store.IncrementTeamScore(teamID, points); err != nil {
		// The event row is already in; the score aggregate catches up
		// when the increment is retried or settlement recomputes it.
		log.Printf("[Score] ⚠️ Score increment failed for team %s after discovery %s: %v", teamID, discovery.ID, err)
		return nil, err
	}

	log.Printf("[Score] 💎 User %s found %s for %d points (match %s, team %d)",
		userID, treasureRef, points, matchID, team.TeamNumber)
	return discovery, nil
}

// IndividualScores folds the discovery log into per-user totals.
func (ss *ScoreService) IndividualScores(matchID string) (map[string]int, error) {
	discoveries, err := ss.Store.ListDiscoveries(matchID)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int)
	for _, d := range discoveries {
		scores[d.UserID] += d.Points
	}
	return scores, nil
}

// Settle finalizes the match: transition to finished, winner persisted,
// scores frozen. winnerOverride exists for administrative correction.
func (ss *ScoreService) Settle(matchID string, winnerOverride *string, actorID string) error {
	if winnerOverride != nil {
		log.Printf("[Score] 🛠 Settlement of match %s by %s with winner override %s", matchID, actorID, *winnerOverride)
	}
	return ss.Lifecycle.FinishMatch(matchID, winnerOverride)
}

// settlementReport is the archived record of a finished match.
type settlementReport struct {
	Match            matchView               `json:"match"`
	IndividualScores map[string]int          `json:"individual_scores"`
	Discoveries      []models.MatchDiscovery `json:"discoveries"`
	SettledAt        time.Time               `json:"settled_at"`
}

// ArchiveSettlement uploads the settlement report to R2. Wired as the
// lifecycle OnFinished hook; best-effort, the store stays the source of
// truth for history.
func (ss *ScoreService) ArchiveSettlement(match models.Match) {
	discoveries, err := ss.Store.ListDiscoveries(match.ID)
	if err != nil {
		log.Printf("[Score] ⚠️ Could not load discoveries for settlement archive of %s: %v", match.ID, err)
		return
	}
	scores := make(map[string]int)
	for _, d := range discoveries {
		scores[d.UserID] += d.Points
	}

	report := settlementReport{
		Match:            newMatchView(&match, time.Now().UTC()),
		IndividualScores: scores,
		Discoveries:      discoveries,
		SettledAt:        time.Now().UTC(),
	}

	key := utils.SettlementKey(match.MatchType, match.ID)
	url, err := utils.UploadJSONToR2(key, report)
	if err != nil {
		log.Printf("[Score] ⚠️ Settlement archive upload failed for match %s: %v", match.ID, err)
		return
	}
	log.Printf("[Score] 📦 Settlement report for match %s archived at %s", match.ID, url)
}

// ---- HTTP handlers ----

type recordDiscoveryRequest struct {
	TeamID      string `json:"team_id"`
	TreasureRef string `json:"treasure_ref"`
	Points      int    `json:"points"`
}

func (ss *ScoreService) RecordDiscoveryHandler(c *fiber.Ctx) error {
	var req recordDiscoveryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Points <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "points must be positive"})
	}
	userID := c.Locals("user_id").(string)

	discovery, err := ss.RecordDiscovery(c.Params("id"), req.TeamID, userID, req.TreasureRef, req.Points)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.Status(201).JSON(discovery)
}

type settleRequest struct {
	WinnerTeamID *string `json:"winner_team_id,omitempty"`
}

func (ss *ScoreService) SettleHandler(c *fiber.Ctx) error {
	var req settleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	userID := c.Locals("user_id").(string)

	if err := ss.Settle(c.Params("id"), req.WinnerTeamID, userID); err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "match settled"})
}

func (ss *ScoreService) IndividualScoresHandler(c *fiber.Ctx) error {
	scores, err := ss.IndividualScores(c.Params("id"))
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"scores": scores})
}
