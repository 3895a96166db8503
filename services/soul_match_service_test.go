package services

import (
	"context"
	"testing"
	"time"

	"pulse_server/models"

	"github.com/jonboulle/clockwork"
)

// testBaseMs is aligned to a window boundary so tests start at a window start.
const testBaseMs = 900_000

type soulHarness struct {
	store *MemoryMatchStore
	clock *clockwork.FakeClock
	queue *SoulQueueService
	match *SoulMatchService
}

func newSoulHarness(t *testing.T) *soulHarness {
	t.Helper()
	store := NewMemoryMatchStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(testBaseMs))
	config := DefaultFocusConfig
	sessions := &MatchSessionService{Store: store, Clock: clock, Config: config}
	return &soulHarness{
		store: store,
		clock: clock,
		queue: &SoulQueueService{Store: store, Clock: clock, Config: config},
		match: &SoulMatchService{Store: store, Clock: clock, Config: config, Sessions: sessions},
	}
}

func (h *soulHarness) nowMs() int64 {
	return h.clock.Now().UnixMilli()
}

func (h *soulHarness) window() FocusWindow {
	return GetFocusWindow(h.nowMs(), DefaultFocusConfig)
}

func (h *soulHarness) join(t *testing.T, username string) string {
	t.Helper()
	result, err := h.queue.JoinQueue(context.Background(), JoinQueueRequest{Username: username})
	if err != nil {
		t.Fatalf("join %s: %v", username, err)
	}
	return result.QueueEntryID
}

func (h *soulHarness) entry(t *testing.T, id string) *models.QueueEntry {
	t.Helper()
	entry, err := h.store.GetQueueEntry(context.Background(), id)
	if err != nil || entry == nil {
		t.Fatalf("queue entry %s not found: %v", id, err)
	}
	return entry
}

func (h *soulHarness) press(t *testing.T, id string) *models.PressEvent {
	t.Helper()
	press, err := h.store.GetPressEvent(context.Background(), id)
	if err != nil || press == nil {
		t.Fatalf("press %s not found: %v", id, err)
	}
	return press
}

func TestReciprocalMatchEndToEnd(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	startA, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !startA.OK {
		t.Fatalf("press start A failed: %+v, %v", startA, err)
	}
	startB, err := h.match.PressStart(ctx, b, a, window.ID)
	if err != nil || !startB.OK {
		t.Fatalf("press start B failed: %+v, %v", startB, err)
	}

	h.clock.Advance(1600 * time.Millisecond)

	commitA, err := h.match.PressCommit(ctx, a, startA.PressEventID, b, window.ID)
	if err != nil {
		t.Fatalf("commit A: %v", err)
	}
	if !commitA.OK || commitA.Matched || commitA.Reason != ReasonWaitingReciprocal {
		t.Fatalf("expected waiting_reciprocal for first commit, got %+v", commitA)
	}
	if got := h.press(t, startA.PressEventID); got.Status != models.PressStatusReady {
		t.Fatalf("press A should be ready, got %s", got.Status)
	}

	commitB, err := h.match.PressCommit(ctx, b, startB.PressEventID, a, window.ID)
	if err != nil {
		t.Fatalf("commit B: %v", err)
	}
	if !commitB.Matched || commitB.MatchID == "" {
		t.Fatalf("expected match on reciprocal commit, got %+v", commitB)
	}

	for _, id := range []string{a, b} {
		entry := h.entry(t, id)
		if entry.QueueStatus != models.QueueStatusMatched || entry.ActiveMatchID == nil || *entry.ActiveMatchID != commitB.MatchID {
			t.Fatalf("participant %s not bound to match: %+v", id, entry)
		}
	}
	for _, pressID := range []string{startA.PressEventID, startB.PressEventID} {
		if got := h.press(t, pressID); got.Status != models.PressStatusMatched {
			t.Fatalf("press %s should be matched, got %s", pressID, got.Status)
		}
	}

	// A session opened for the match.
	session, err := h.store.GetSessionByMatch(ctx, commitB.MatchID)
	if err != nil || session == nil {
		t.Fatalf("no session for match: %v", err)
	}
	if session.Status != models.SessionStatusActive {
		t.Fatalf("session should be active, got %s", session.Status)
	}

	// A's duplicate commit reports the same match instead of minting another.
	commitAgain, err := h.match.PressCommit(ctx, a, startA.PressEventID, b, window.ID)
	if err != nil {
		t.Fatalf("duplicate commit: %v", err)
	}
	if !commitAgain.Matched || commitAgain.MatchID != commitB.MatchID {
		t.Fatalf("duplicate commit should return existing match, got %+v", commitAgain)
	}

	// Matched presses are cancel-immune.
	cancel, err := h.match.PressCancel(ctx, a, startA.PressEventID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancel.OK || !cancel.Preserved {
		t.Fatalf("cancel of matched press should be preserved, got %+v", cancel)
	}

	// Close releases both participants.
	closed, err := h.match.CloseMatch(ctx, b, commitB.MatchID)
	if err != nil || !closed.OK {
		t.Fatalf("close match: %+v, %v", closed, err)
	}
	for _, id := range []string{a, b} {
		entry := h.entry(t, id)
		if entry.ActiveMatchID != nil || entry.QueueStatus != models.QueueStatusQueued {
			t.Fatalf("participant %s not released: %+v", id, entry)
		}
	}
	session, err = h.store.GetSessionByMatch(ctx, commitB.MatchID)
	if err != nil || session == nil || session.Status != models.SessionStatusEnded {
		t.Fatalf("session should be ended after close, got %+v", session)
	}

	// Closing again is a no-op success.
	closedAgain, err := h.match.CloseMatch(ctx, a, commitB.MatchID)
	if err != nil || !closedAgain.OK {
		t.Fatalf("idempotent close failed: %+v, %v", closedAgain, err)
	}
}

func TestPressStartIdempotentReuse(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	first, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !first.OK {
		t.Fatalf("first start: %+v, %v", first, err)
	}
	second, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !second.OK {
		t.Fatalf("second start: %+v, %v", second, err)
	}
	if !second.Reused || second.PressEventID != first.PressEventID {
		t.Fatalf("retry should reuse press, got %+v", second)
	}
}

func TestPressStartRejections(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	// Stale window id.
	result, err := h.match.PressStart(ctx, a, b, "12345")
	if err != nil {
		t.Fatal(err)
	}
	if result.OK || result.Reason != ReasonFocusWindowMoved {
		t.Fatalf("expected focus_window_moved, got %+v", result)
	}
	if result.FocusWindow == nil || result.FocusWindow.ID != window.ID {
		t.Fatalf("rejection should carry the current window, got %+v", result.FocusWindow)
	}

	// Wrong target: with two participants A's target is always B.
	result, err = h.match.PressStart(ctx, a, a, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.OK || result.Reason != ReasonInvalidTarget {
		t.Fatalf("expected invalid_target, got %+v", result)
	}

	// Left participants cannot press.
	if err := h.queue.LeaveQueue(ctx, a); err != nil {
		t.Fatal(err)
	}
	result, err = h.match.PressStart(ctx, a, b, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.OK || result.Reason != ReasonQueueInactive {
		t.Fatalf("expected queue_inactive, got %+v", result)
	}
}

func TestPressCommitMinHold(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}

	h.clock.Advance(500 * time.Millisecond)
	commit, err := h.match.PressCommit(ctx, a, start.PressEventID, b, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !commit.OK || commit.Reason != ReasonMinHold || commit.Matched {
		t.Fatalf("expected min_hold, got %+v", commit)
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusHolding {
		t.Fatalf("press should stay holding after min_hold, got %s", got.Status)
	}

	// Retry once enough time has passed.
	h.clock.Advance(1100 * time.Millisecond)
	commit, err = h.match.PressCommit(ctx, a, start.PressEventID, b, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !commit.OK || commit.Reason != ReasonWaitingReciprocal {
		t.Fatalf("expected waiting_reciprocal after retry, got %+v", commit)
	}
}

func TestPressCommitWindowMoved(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}

	h.clock.Advance(time.Duration(DefaultFocusConfig.FocusWindowMs+100) * time.Millisecond)
	commit, err := h.match.PressCommit(ctx, a, start.PressEventID, b, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if commit.OK || commit.Reason != ReasonFocusWindowMoved {
		t.Fatalf("expected focus_window_moved, got %+v", commit)
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusExpired {
		t.Fatalf("press should be expired after rotation, got %s", got.Status)
	}
}

func TestPressCommitWindowExpired(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")

	// Start the hold too late in the window to ever reach min hold.
	h.clock.Advance(1600 * time.Millisecond)
	window := h.window()
	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}

	h.clock.Advance(1000 * time.Millisecond)
	commit, err := h.match.PressCommit(ctx, a, start.PressEventID, b, window.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !commit.OK || commit.Reason != ReasonWindowExpired || commit.Matched {
		t.Fatalf("expected window_expired, got %+v", commit)
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusExpired {
		t.Fatalf("press should be expired, got %s", got.Status)
	}
	if entry := h.entry(t, a); entry.QueueStatus != models.QueueStatusQueued {
		t.Fatalf("participant should return to queued, got %s", entry.QueueStatus)
	}
}

func TestPressCancelHolding(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}

	cancel, err := h.match.PressCancel(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancel.OK || cancel.Preserved {
		t.Fatalf("holding press should cancel cleanly, got %+v", cancel)
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusCancelled {
		t.Fatalf("press should be cancelled, got %s", got.Status)
	}
	if entry := h.entry(t, a); entry.QueueStatus != models.QueueStatusQueued {
		t.Fatalf("participant should return to queued, got %s", entry.QueueStatus)
	}
}

func TestPressCancelReadyPreserved(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}
	h.clock.Advance(1600 * time.Millisecond)
	if _, err := h.match.PressCommit(ctx, a, start.PressEventID, b, window.ID); err != nil {
		t.Fatal(err)
	}

	cancel, err := h.match.PressCancel(ctx, a, start.PressEventID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancel.OK || !cancel.Preserved {
		t.Fatalf("ready press should be preserved, got %+v", cancel)
	}
	if got := h.press(t, start.PressEventID); got.Status != models.PressStatusReady {
		t.Fatalf("ready press should be untouched by cancel, got %s", got.Status)
	}
}

func TestGetClientState(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	start, err := h.match.PressStart(ctx, a, b, window.ID)
	if err != nil || !start.OK {
		t.Fatalf("start: %+v, %v", start, err)
	}
	h.clock.Advance(750 * time.Millisecond)

	stateA, err := h.match.GetClientState(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if !stateA.QueueActive {
		t.Fatal("A should be active")
	}
	if stateA.FocusTarget == nil || stateA.FocusTarget.QueueEntryID != b {
		t.Fatalf("A's focus target should be B, got %+v", stateA.FocusTarget)
	}
	if stateA.SelfHold == nil || stateA.SelfHold.PressEventID != start.PressEventID {
		t.Fatalf("A's hold missing from state: %+v", stateA.SelfHold)
	}
	if stateA.SelfHold.ProgressMs != 750 || stateA.SelfHold.ProgressRatio != 0.5 {
		t.Fatalf("unexpected hold progress: %+v", stateA.SelfHold)
	}
	if len(stateA.Candidates) != 1 || stateA.Candidates[0].QueueEntryID != b {
		t.Fatalf("unexpected candidates for A: %+v", stateA.Candidates)
	}

	// B sees A's hold as the reciprocal hold aimed at them.
	stateB, err := h.match.GetClientState(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if stateB.PartnerReciprocalHold == nil || stateB.PartnerReciprocalHold.PressEventID != start.PressEventID {
		t.Fatalf("B should see A's reciprocal hold, got %+v", stateB.PartnerReciprocalHold)
	}

	// Unknown participants get a bare window-only state.
	stateUnknown, err := h.match.GetClientState(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if stateUnknown.QueueActive || stateUnknown.FocusTarget != nil || stateUnknown.SelfHold != nil {
		t.Fatalf("unknown participant should get empty state, got %+v", stateUnknown)
	}
}

func TestGetClientStateWithActiveMatch(t *testing.T) {
	h := newSoulHarness(t)
	ctx := context.Background()

	a := h.join(t, "ada")
	b := h.join(t, "bea")
	window := h.window()

	startA, _ := h.match.PressStart(ctx, a, b, window.ID)
	startB, _ := h.match.PressStart(ctx, b, a, window.ID)
	h.clock.Advance(1600 * time.Millisecond)
	if _, err := h.match.PressCommit(ctx, a, startA.PressEventID, b, window.ID); err != nil {
		t.Fatal(err)
	}
	commit, err := h.match.PressCommit(ctx, b, startB.PressEventID, a, window.ID)
	if err != nil || !commit.Matched {
		t.Fatalf("expected match: %+v, %v", commit, err)
	}

	state, err := h.match.GetClientState(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if state.ActiveMatch == nil || state.ActiveMatch.MatchID != commit.MatchID {
		t.Fatalf("A's state missing active match: %+v", state.ActiveMatch)
	}
	if state.ActiveMatch.Partner == nil || state.ActiveMatch.Partner.QueueEntryID != b {
		t.Fatalf("partner not resolved: %+v", state.ActiveMatch.Partner)
	}
	if state.ActiveMatch.SessionID == nil {
		t.Fatal("active match should carry its session id")
	}
	if state.FocusTarget != nil || state.SelfHold != nil {
		t.Fatalf("matched participant should not get targeting state: %+v", state)
	}
}
