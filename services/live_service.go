package services

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// LiveService turns store change events into SSE streams of immutable
// snapshots. It is derived state only: every subscriber sees what the
// store says, never peer-broadcast deltas. Snapshots are deduplicated
// by document hash so an unchanged poll does not thrash the UI, and
// dedup state is keyed per match id so out-of-order events from
// different matches cannot cross-contaminate.
type LiveService struct {
	Feed     MatchFeed
	Interval time.Duration
}

func NewLiveService(feed MatchFeed) *LiveService {
	return &LiveService{Feed: feed, Interval: 2 * time.Second}
}

// snapshotDeduper drops payloads whose full-document hash matches the
// last one emitted for the same key.
type snapshotDeduper struct {
	last map[string][sha256.Size]byte
}

func newSnapshotDeduper() *snapshotDeduper {
	return &snapshotDeduper{last: make(map[string][sha256.Size]byte)}
}

func (d *snapshotDeduper) Changed(key string, payload []byte) bool {
	sum := sha256.Sum256(payload)
	if prev, ok := d.last[key]; ok && prev == sum {
		return false
	}
	d.last[key] = sum
	return true
}

// WatchMatchHandler streams snapshots of one match over SSE until the
// client disconnects or the match is deleted.
func (ls *LiveService) WatchMatchHandler(c *fiber.Ctx) error {
	matchID := c.Params("id")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := ls.Feed.WatchMatch(ctx, matchID, ls.Interval)
		dedupe := newSnapshotDeduper()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-reqCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Deleted {
					fmt.Fprintf(w, "event: deleted\ndata: {\"id\":%q}\n\n", matchID)
					w.Flush()
					return
				}

				view := newMatchView(&event.Match, time.Now().UTC())
				payload, err := json.Marshal(view)
				if err != nil {
					log.Printf("[Live] marshal snapshot of %s failed: %v", matchID, err)
					continue
				}
				// Hash over the state, not the countdown, or every tick
				// would look like a change.
				view.RemainingSeconds = 0
				state, _ := json.Marshal(view)
				if !dedupe.Changed(matchID, state) {
					continue
				}

				fmt.Fprintf(w, "event: match\ndata: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
			}
		}
	})

	return nil
}

// WatchWaitingHandler streams the waiting-match list for a match type.
func (ls *LiveService) WatchWaitingHandler(c *fiber.Ctx) error {
	matchType := c.Query("type")
	if matchType == "" {
		return c.Status(400).JSON(fiber.Map{"error": "type query parameter required"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	reqCtx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snapshots := ls.Feed.WatchWaiting(ctx, matchType, ls.Interval)
		dedupe := newSnapshotDeduper()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-reqCtx.Done():
				return
			case matches, ok := <-snapshots:
				if !ok {
					return
				}
				now := time.Now().UTC()
				views := make([]matchView, 0, len(matches))
				for i := range matches {
					views = append(views, newMatchView(&matches[i], now))
				}
				payload, err := json.Marshal(views)
				if err != nil {
					log.Printf("[Live] marshal waiting list %q failed: %v", matchType, err)
					continue
				}
				if !dedupe.Changed("waiting:"+matchType, payload) {
					continue
				}

				fmt.Fprintf(w, "event: waiting\ndata: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
