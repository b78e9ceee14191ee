// services/scheduler.go
package services

import (
	"errors"
	"log"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/go-co-op/gocron/v2"
)

// ReconciliationSweep repairs whatever the happy path left behind:
// playing matches whose auto-end timer died with its process, matching
// matches stranded with zero members, and membership pointers at
// matches that no longer exist or are over. Stateless; any number of
// instances can run it concurrently thanks to the guarded writes.
type ReconciliationSweep struct {
	Store     MatchStore
	Lifecycle *LifecycleService
}

// Run executes one sweep pass.
func (rs *ReconciliationSweep) Run() {
	rs.finishOverdueMatches()
	rs.reapOrphanMatches()
	rs.repairMemberships()
}

// finishOverdueMatches is the correctness backstop behind the auto-end
// timer: any playing match past its deadline gets finished here.
func (rs *ReconciliationSweep) finishOverdueMatches() {
	playing, err := rs.Store.ListByStatus(models.MatchStatusPlaying)
	if err != nil {
		log.Printf("[Sweep] ❌ Listing playing matches failed: %v", err)
		return
	}
	now := time.Now().UTC()
	for _, m := range playing {
		if m.Deadline().After(now) {
			continue
		}
		log.Printf("[Sweep] ⏰ Match %s overdue since %s, finishing", m.ID, m.Deadline().Format(time.RFC3339))
		if err := rs.Lifecycle.FinishMatch(m.ID, nil); err != nil && !errors.Is(err, game.ErrMatchNotPlaying) {
			log.Printf("[Sweep] ❌ Failed to finish overdue match %s: %v", m.ID, err)
		}
	}
}

// orphanGracePeriod keeps the sweep off matches whose create saga may
// still be between its two writes.
const orphanGracePeriod = 1 * time.Minute

// reapOrphanMatches deletes matching-state matches that lost their last
// member through a partially failed leave, deletes matches no
// membership pointer references (a create saga that died between its
// two writes leaves the creator on the roster with no pointer back),
// and flags roster/count mismatches for operators.
func (rs *ReconciliationSweep) reapOrphanMatches() {
	waiting, err := rs.Store.ListByStatus(models.MatchStatusMatching)
	if err != nil {
		log.Printf("[Sweep] ❌ Listing matching matches failed: %v", err)
		return
	}
	entries, err := rs.Store.ListMemberships()
	if err != nil {
		log.Printf("[Sweep] ❌ Listing memberships failed: %v", err)
		return
	}
	referenced := make(map[string]bool, len(entries))
	for _, entry := range entries {
		referenced[entry.MatchID] = true
	}

	cutoff := time.Now().UTC().Add(-orphanGracePeriod)
	for i := range waiting {
		m := &waiting[i]
		for j := range m.Teams {
			t := &m.Teams[j]
			if len(t.Players()) != t.CurrentPlayers {
				log.Printf("[Sweep] 🚨 Team %s of match %s has current_players=%d but %d roster entries",
					t.ID, m.ID, t.CurrentPlayers, len(t.Players()))
			}
		}
		switch {
		case m.TotalPlayers() == 0:
			log.Printf("[Sweep] 🗑 Reaping orphan match %s (no members)", m.ID)
		case !referenced[m.ID] && m.CreatedAt.Before(cutoff):
			log.Printf("[Sweep] 🗑 Reaping orphan match %s (no membership pointer references it)", m.ID)
		default:
			continue
		}
		if err := rs.Store.DeleteMatch(m.ID); err != nil {
			log.Printf("[Sweep] ❌ Failed to delete orphan match %s: %v", m.ID, err)
		}
	}
}

// repairMemberships clears index entries whose match is gone or over —
// the tail end of any saga that failed between its two writes.
func (rs *ReconciliationSweep) repairMemberships() {
	entries, err := rs.Store.ListMemberships()
	if err != nil {
		log.Printf("[Sweep] ❌ Listing memberships failed: %v", err)
		return
	}
	for _, entry := range entries {
		match, err := rs.Store.ReadMatch(entry.MatchID)
		if err != nil {
			if errors.Is(err, game.ErrMatchNotFound) {
				log.Printf("[Sweep] 🧹 Clearing membership of %s: match %s is gone", entry.UserID, entry.MatchID)
				if err := rs.Store.ClearActiveMatch(entry.UserID); err != nil {
					log.Printf("[Sweep] ❌ Failed to clear membership of %s: %v", entry.UserID, err)
				}
			}
			continue
		}
		if !match.IsActive() {
			log.Printf("[Sweep] 🧹 Clearing membership of %s: match %s is %s", entry.UserID, entry.MatchID, match.Status)
			if err := rs.Store.ClearActiveMatch(entry.UserID); err != nil {
				log.Printf("[Sweep] ❌ Failed to clear membership of %s: %v", entry.UserID, err)
			}
		}
	}
}

// StartReconciliationScheduler runs the sweep every minute and the
// location history cleanup every hour.
func StartReconciliationScheduler(sweep *ReconciliationSweep, locations *LocationService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(sweep.Run),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(locations.CleanupHistory),
	)

	log.Println("✅ Reconciliation scheduler started (sweep every 1m, location cleanup every 1h)")
}
