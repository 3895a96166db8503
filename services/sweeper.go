package services

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

const sweepInterval = 60 * time.Second

// Sweeper is the single background maintenance loop: it deactivates stale
// queue entries, expires orphaned presses, ends timed-out sessions, and
// prunes expired chat. Each pass is also callable directly via RunOnce.
type Sweeper struct {
	Queue    *SoulQueueService
	Sessions *MatchSessionService
	Chat     *SessionChatService
	Clock    clockwork.Clock
}

// RunOnce executes one full maintenance pass. Errors are logged, not
// returned upward; one failing subsystem must not stop the others.
func (w *Sweeper) RunOnce(ctx context.Context) {
	if result, err := w.Queue.SweepStale(ctx); err != nil {
		log.Printf("❌ Queue sweep failed: %v", err)
	} else if result.StaleQueueEntries > 0 || result.ExpiredPresses > 0 {
		log.Printf("🧹 Sweep: %d entries deactivated, %d presses expired",
			result.StaleQueueEntries, result.ExpiredPresses)
	}

	if _, err := w.Sessions.EndExpired(ctx); err != nil {
		log.Printf("❌ Session sweep failed: %v", err)
	}
	if _, err := w.Chat.PruneExpired(ctx); err != nil {
		log.Printf("❌ Chat prune failed: %v", err)
	}
}

// Run loops RunOnce on a fixed interval until the context is cancelled.
// Intended to be launched as a goroutine from main.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := w.Clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	log.Printf("🧹 Sweeper started (every %s)", sweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("🧹 Sweeper stopped")
			return
		case <-ticker.Chan():
			w.RunOnce(ctx)
		}
	}
}
