package store

import (
	"context"
	"errors"
	"log"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"
)

// MatchEvent is one change-feed emission for a single match. Deleted is
// set when the match disappeared from the store (reaped or cancelled
// while still matching).
type MatchEvent struct {
	Match   models.Match
	Deleted bool
}

// WatchMatch emits the current state of one match on every tick until
// ctx is cancelled or the match is deleted. Emissions for one match are
// in write order; consumers (the live view projection) drop unchanged
// snapshots by hash, so the feed does not bother deduplicating.
func (s *MatchStore) WatchMatch(ctx context.Context, matchID string, interval time.Duration) <-chan MatchEvent {
	events := make(chan MatchEvent, 1)

	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				match, err := s.ReadMatch(matchID)
				if err != nil {
					if errors.Is(err, game.ErrMatchNotFound) {
						select {
						case events <- MatchEvent{Match: models.Match{ID: matchID}, Deleted: true}:
						case <-ctx.Done():
						}
						return
					}
					log.Printf("[Feed] read match %s failed: %v", matchID, err)
					continue
				}
				select {
				case events <- MatchEvent{Match: *match}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

// WatchWaiting emits the waiting-match list for a type on every tick.
func (s *MatchStore) WatchWaiting(ctx context.Context, matchType string, interval time.Duration) <-chan []models.Match {
	snapshots := make(chan []models.Match, 1)

	go func() {
		defer close(snapshots)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				matches, err := s.QueryWaiting(matchType)
				if err != nil {
					log.Printf("[Feed] query waiting %q failed: %v", matchType, err)
					continue
				}
				select {
				case snapshots <- matches:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return snapshots
}
