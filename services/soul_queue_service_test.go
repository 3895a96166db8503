package services

import (
	"context"
	"testing"
	"time"

	"pulse_server/models"
)

func TestJoinQueueIdempotent(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	first, err := h.queue.JoinQueue(ctx, JoinQueueRequest{Username: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.QueueStatusQueued {
		t.Fatalf("fresh join should be queued, got %s", first.Status)
	}

	// Re-joining with the same identity (case-insensitive) reuses the entry.
	h.clock.Advance(5 * time.Second)
	second, err := h.queue.JoinQueue(ctx, JoinQueueRequest{Username: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if second.QueueEntryID != first.QueueEntryID {
		t.Fatalf("rejoin forked a second identity: %s vs %s", second.QueueEntryID, first.QueueEntryID)
	}
	if second.JoinedAt != first.JoinedAt {
		t.Fatalf("rejoin must preserve joinedAt: %d vs %d", second.JoinedAt, first.JoinedAt)
	}

	// After going stale, joining creates a fresh entry.
	h.clock.Advance(time.Duration(DefaultFocusConfig.QueueStaleAfterMs+1000) * time.Millisecond)
	third, err := h.queue.JoinQueue(ctx, JoinQueueRequest{Username: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if third.QueueEntryID == first.QueueEntryID {
		t.Fatal("stale entry should not be reused")
	}
}

func TestJoinQueueRequiresIdentity(t *testing.T) {
	h := newSoulHarness(t)
	if _, err := h.queue.JoinQueue(context.Background(), JoinQueueRequest{}); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestHeartbeat(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")

	missing, err := h.queue.Heartbeat(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing.OK || missing.Reason != "missing" {
		t.Fatalf("expected missing, got %+v", missing)
	}

	h.clock.Advance(20 * time.Second)
	beat, err := h.queue.Heartbeat(ctx, a)
	if err != nil || !beat.OK {
		t.Fatalf("heartbeat: %+v, %v", beat, err)
	}
	entry := h.entry(t, a)
	if entry.LastHeartbeatAt != h.nowMs() {
		t.Fatalf("heartbeat not recorded: %d vs %d", entry.LastHeartbeatAt, h.nowMs())
	}
	if !isQueueEntryActive(entry, h.nowMs(), DefaultFocusConfig) {
		t.Fatal("entry should be active after heartbeat")
	}
}

func TestHeartbeatPreservesMatchingStatus(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	if _, err := h.match.PressStart(ctx, a, b, window.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.entry(t, a).QueueStatus; got != models.QueueStatusMatching {
		t.Fatalf("press start should set matching, got %s", got)
	}

	if _, err := h.queue.Heartbeat(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := h.entry(t, a).QueueStatus; got != models.QueueStatusMatching {
		t.Fatalf("heartbeat should preserve matching, got %s", got)
	}
}

func TestLeaveQueueCancelsHolds(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("press start: %+v, %v", start, err)
	}

	if err := h.queue.LeaveQueue(ctx, a); err != nil {
		t.Fatal(err)
	}
	entry := h.entry(t, a)
	if entry.IsActive {
		t.Fatal("entry should be inactive after leave")
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusCancelled {
		t.Fatalf("leave should cancel the in-flight hold, got %s", got.Status)
	}

	// Leaving again, or with an unknown id, is a no-op.
	if err := h.queue.LeaveQueue(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := h.queue.LeaveQueue(ctx, "nope"); err != nil {
		t.Fatal(err)
	}
}

func TestGetQueueSnapshot(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	h.join(t, "bea")
	h.join(t, "cyn")

	snapshot, err := h.queue.GetQueueSnapshot(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.QueueCount != 3 {
		t.Fatalf("expected 3 online, got %d", snapshot.QueueCount)
	}
	if snapshot.Self == nil || snapshot.Self.QueueEntryID != a {
		t.Fatalf("self missing from snapshot: %+v", snapshot.Self)
	}
	if len(snapshot.OnlineCandidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(snapshot.OnlineCandidates))
	}
	for _, candidate := range snapshot.OnlineCandidates {
		if candidate.QueueEntryID == a {
			t.Fatal("snapshot must exclude self from candidates")
		}
	}
	if snapshot.EstimatedWaitMs == nil {
		t.Fatal("expected a wait estimate with multiple participants")
	}
	if snapshot.Status != models.QueueStatusQueued {
		t.Fatalf("expected queued status, got %s", snapshot.Status)
	}
}

func TestSweepStale(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("press start: %+v, %v", start, err)
	}

	// Everyone goes silent past the staleness threshold.
	h.clock.Advance(time.Duration(DefaultFocusConfig.QueueStaleAfterMs+5000) * time.Millisecond)

	result, err := h.queue.SweepStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.StaleQueueEntries != 2 {
		t.Fatalf("expected 2 stale entries, got %d", result.StaleQueueEntries)
	}
	if result.ExpiredPresses != 1 {
		t.Fatalf("expected 1 expired press, got %d", result.ExpiredPresses)
	}

	entry := h.entry(t, a)
	if entry.IsActive {
		t.Fatal("stale entry should be deactivated")
	}
	press := h.press(t, start.PressEventID)
	if press.Status != models.PressStatusExpired {
		t.Fatalf("orphaned press should be expired, got %s", press.Status)
	}
	if press.DurationMs == nil {
		t.Fatal("expired press should record a terminal duration")
	}

	// A second sweep finds nothing.
	result, err = h.queue.SweepStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.StaleQueueEntries != 0 || result.ExpiredPresses != 0 {
		t.Fatalf("second sweep should be clean, got %+v", result)
	}
}

func TestSweepExpiresPressAfterWindowRotation(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("press start: %+v, %v", start, err)
	}

	// Window rotates but participants stay fresh.
	h.clock.Advance(time.Duration(DefaultFocusConfig.FocusWindowMs+500) * time.Millisecond)
	if _, err := h.queue.Heartbeat(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := h.queue.Heartbeat(ctx, b); err != nil {
		t.Fatal(err)
	}

	result, err := h.queue.SweepStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.StaleQueueEntries != 0 {
		t.Fatalf("fresh entries must survive the sweep, got %d stale", result.StaleQueueEntries)
	}
	if result.ExpiredPresses != 1 {
		t.Fatalf("press from the rotated window should expire, got %d", result.ExpiredPresses)
	}
}
