package services

import (
	"context"
	"testing"
	"time"

	"pulse_server/models"

	"github.com/jonboulle/clockwork"
)

type overlapHarness struct {
	store   *MemoryMatchStore
	clock   *clockwork.FakeClock
	queue   *SoulQueueService
	overlap *OverlapMatchService
}

func newOverlapHarness(t *testing.T) *overlapHarness {
	t.Helper()
	store := NewMemoryMatchStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(testBaseMs))
	config := DefaultFocusConfig
	sessions := &MatchSessionService{Store: store, Clock: clock, Config: config}
	return &overlapHarness{
		store:   store,
		clock:   clock,
		queue:   &SoulQueueService{Store: store, Clock: clock, Config: config},
		overlap: &OverlapMatchService{Store: store, Clock: clock, Config: config, Sessions: sessions},
	}
}

func (h *overlapHarness) join(t *testing.T, username string) string {
	t.Helper()
	result, err := h.queue.JoinQueue(context.Background(), JoinQueueRequest{Username: username})
	if err != nil {
		t.Fatalf("join %s: %v", username, err)
	}
	return result.QueueEntryID
}

func TestOverlapMatchPairsOverlappingHolds(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")

	startA, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !startA.OK {
		t.Fatalf("hold start A: %+v, %v", startA, err)
	}

	h.clock.Advance(1000 * time.Millisecond)
	startB, err := h.overlap.HoldStart(ctx, b)
	if err != nil || !startB.OK {
		t.Fatalf("hold start B: %+v, %v", startB, err)
	}

	// A ends first with no compatible partner yet: their press stays pending.
	h.clock.Advance(600 * time.Millisecond)
	endA, err := h.overlap.HoldEnd(ctx, a, startA.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !endA.OK || endA.Matched {
		t.Fatalf("A should end unmatched, got %+v", endA)
	}

	// B ends: intervals are [0,1600] and [1000,2600], overlap 600ms.
	h.clock.Advance(1000 * time.Millisecond)
	endB, err := h.overlap.HoldEnd(ctx, b, startB.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !endB.Matched || endB.OverlapMs != 600 {
		t.Fatalf("expected 600ms overlap match, got %+v", endB)
	}

	for _, id := range []string{a, b} {
		entry, err := h.store.GetQueueEntry(ctx, id)
		if err != nil || entry == nil {
			t.Fatalf("entry %s: %v", id, err)
		}
		if entry.QueueStatus != models.QueueStatusMatched || entry.ActiveMatchID == nil || *entry.ActiveMatchID != endB.MatchID {
			t.Fatalf("participant %s not bound to match: %+v", id, entry)
		}
	}
	for _, pressID := range []string{startA.PressEventID, startB.PressEventID} {
		press, err := h.store.GetPressEvent(ctx, pressID)
		if err != nil || press == nil || press.Status != models.PressStatusMatched {
			t.Fatalf("press %s should be matched: %+v, %v", pressID, press, err)
		}
	}
	session, err := h.store.GetSessionByMatch(ctx, endB.MatchID)
	if err != nil || session == nil {
		t.Fatalf("overlap match should open a session: %v", err)
	}
}

func TestOverlapHoldEndMinHold(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	start, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !start.OK {
		t.Fatalf("hold start: %+v, %v", start, err)
	}

	h.clock.Advance(500 * time.Millisecond)
	end, err := h.overlap.HoldEnd(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !end.OK || end.Reason != ReasonMinHold || end.Matched {
		t.Fatalf("expected min_hold, got %+v", end)
	}
	press, err := h.store.GetPressEvent(ctx, start.PressEventID)
	if err != nil || press == nil || press.Status != models.PressStatusExpired {
		t.Fatalf("short hold should expire: %+v, %v", press, err)
	}
}

func TestOverlapHoldEndShortOverlapNoMatch(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")

	startA, _ := h.overlap.HoldStart(ctx, a)
	h.clock.Advance(1500 * time.Millisecond)
	if _, err := h.overlap.HoldEnd(ctx, a, startA.PressEventID); err != nil {
		t.Fatal(err)
	}

	// B starts after A already ended, so the intervals are disjoint.
	startB, _ := h.overlap.HoldStart(ctx, b)
	h.clock.Advance(1600 * time.Millisecond)
	endB, err := h.overlap.HoldEnd(ctx, b, startB.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if endB.Matched {
		t.Fatalf("disjoint holds must not match, got %+v", endB)
	}
}

func TestOverlapHoldDurationClamped(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	start, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !start.OK {
		t.Fatalf("hold start: %+v, %v", start, err)
	}

	h.clock.Advance(10 * time.Second)
	end, err := h.overlap.HoldEnd(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !end.OK || end.DurationMs == nil || *end.DurationMs != DefaultFocusConfig.MaxPressDurationMs {
		t.Fatalf("duration should clamp to max press duration, got %+v", end)
	}
}

func TestOverlapHoldCancel(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	start, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !start.OK {
		t.Fatalf("hold start: %+v, %v", start, err)
	}

	cancel, err := h.overlap.HoldCancel(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancel.OK || cancel.Preserved {
		t.Fatalf("pending hold should cancel cleanly, got %+v", cancel)
	}
	press, err := h.store.GetPressEvent(ctx, start.PressEventID)
	if err != nil || press == nil || press.Status != models.PressStatusCancelled {
		t.Fatalf("press should be cancelled: %+v, %v", press, err)
	}

	// Cancelling again is rejected, not preserved.
	cancel, err = h.overlap.HoldCancel(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if cancel.OK || cancel.Reason != ReasonPressNotHolding {
		t.Fatalf("expected press_not_holding, got %+v", cancel)
	}
}

func TestOverlapHoldStartReuse(t *testing.T) {
	h := newOverlapHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	first, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !first.OK {
		t.Fatalf("first start: %+v, %v", first, err)
	}
	second, err := h.overlap.HoldStart(ctx, a)
	if err != nil || !second.OK {
		t.Fatalf("second start: %+v, %v", second, err)
	}
	if !second.Reused || second.PressEventID != first.PressEventID {
		t.Fatalf("retry should reuse the open hold, got %+v", second)
	}
}
