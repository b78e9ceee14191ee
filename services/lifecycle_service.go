package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"
)

// LifecycleService owns the match state machine:
//
//	matching -> playing   when both teams fill up (idempotent trigger)
//	playing  -> finished  on the auto-end timer or an explicit settle
//
// The timer is an optimization; the reconciliation sweep independently
// finishes overdue matches, so a crashed instance never leaves a match
// playing forever.
type LifecycleService struct {
	Store MatchStore

	// OnFinished runs after a match reaches finished state (settlement
	// archival hooks in here). Optional.
	OnFinished func(match models.Match)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewLifecycleService(store MatchStore) *LifecycleService {
	return &LifecycleService{
		Store:  store,
		timers: make(map[string]*time.Timer),
	}
}

// TryStartMatch moves a full match from matching to playing. Safe to
// call from every join that observes "now full": the guarded status
// flip makes exactly one caller win, and the timer map keeps duplicate
// fires from double-scheduling the auto-end.
func (s *LifecycleService) TryStartMatch(matchID string) error {
	match, err := s.Store.ReadMatch(matchID)
	if err != nil {
		if errors.Is(err, game.ErrMatchNotFound) {
			return nil
		}
		return err
	}
	if match.Status != models.MatchStatusMatching || !game.IsMatchFull(match) {
		return nil
	}

	now := time.Now().UTC()
	started, err := s.Store.TransitionStatus(matchID, models.MatchStatusMatching, models.MatchStatusPlaying,
		map[string]interface{}{"started_at": now})
	if err != nil {
		return err
	}
	if !started {
		// Another join already flipped it.
		return nil
	}

	duration := time.Duration(match.DurationSec) * time.Second
	log.Printf("[Lifecycle] ▶️ Match %s started (%s, auto-end in %s)", matchID, match.MatchType, duration)
	s.scheduleAutoEnd(matchID, duration)
	return nil
}

// scheduleAutoEnd arms the playing->finished timer once per match.
func (s *LifecycleService) scheduleAutoEnd(matchID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.timers[matchID]; exists {
		return
	}
	s.timers[matchID] = time.AfterFunc(d, func() {
		if err := s.FinishMatch(matchID, nil); err != nil && !errors.Is(err, game.ErrMatchNotPlaying) {
			log.Printf("[Lifecycle] ⚠️ Auto-end of match %s failed: %v", matchID, err)
		}
	})
}

// cancelAutoEnd disarms a pending timer, if this instance holds one.
func (s *LifecycleService) cancelAutoEnd(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[matchID]; ok {
		timer.Stop()
		delete(s.timers, matchID)
	}
}

// FinishMatch moves a playing match to finished, records the winner and
// releases every member's active-match slot. winnerOverride replaces
// the computed winner for administrative correction and is logged.
// Returns ErrMatchNotPlaying when the match is not (or no longer)
// playing, which makes concurrent finish attempts collapse into one.
func (s *LifecycleService) FinishMatch(matchID string, winnerOverride *string) error {
	match, err := s.Store.ReadMatch(matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusPlaying {
		return game.ErrMatchNotPlaying
	}
	if winnerOverride != nil && match.TeamByID(*winnerOverride) == nil {
		return game.ErrMemberNotFound
	}

	now := time.Now().UTC()
	finished, err := s.Store.TransitionStatus(matchID, models.MatchStatusPlaying, models.MatchStatusFinished,
		map[string]interface{}{"ended_at": now})
	if err != nil {
		return err
	}
	if !finished {
		return game.ErrMatchNotPlaying
	}

	s.cancelAutoEnd(matchID)

	// The flip froze the scores: discoveries land only on playing
	// matches. The winner must come from the frozen scores, not the
	// ones read before the flip.
	final, err := s.Store.ReadMatch(matchID)
	if err != nil {
		return err
	}
	winningTeamID := game.Winner(final)
	if winnerOverride != nil {
		log.Printf("[Lifecycle] 🛠 Winner override for match %s: %s (computed %s)",
			matchID, *winnerOverride, winningTeamID)
		winningTeamID = *winnerOverride
	}
	if err := s.Store.WriteMatchFields(matchID, map[string]interface{}{"winning_team_id": winningTeamID}); err != nil {
		return err
	}

	if err := s.Store.ClearMatchMemberships(matchID); err != nil {
		// Members stay pointed at a finished match until the sweep
		// clears them; reconnect reconciliation also self-heals.
		log.Printf("[Lifecycle] ⚠️ Failed to clear memberships for match %s: %v", matchID, err)
	}

	log.Printf("[Lifecycle] 🏁 Match %s finished, winning team %s", matchID, winningTeamID)

	if s.OnFinished != nil {
		if final, err := s.Store.ReadMatch(matchID); err == nil {
			s.OnFinished(*final)
		}
	}
	return nil
}
