package services

import (
	"context"
	"log"
	"sync"

	"pulse_server/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Structured reason codes shared by the match operations. These are outcomes,
// not errors: clients branch on them and retry after re-fetching state.
const (
	ReasonQueueInactive     = "queue_inactive"
	ReasonAlreadyMatched    = "already_matched"
	ReasonFocusWindowMoved  = "focus_window_moved"
	ReasonInvalidTarget     = "invalid_target"
	ReasonMissingPress      = "missing_press"
	ReasonPressNotHolding   = "press_not_holding"
	ReasonWindowExpired     = "window_expired"
	ReasonMinHold           = "min_hold"
	ReasonWaitingReciprocal = "waiting_reciprocal"
	ReasonMissing           = "missing"
	ReasonAccessDenied      = "access_denied"
	ReasonNoTarget          = "no_target"
)

// SoulMatchService implements the focus-window reciprocal matching protocol:
// pressStart, pressCommit, pressCancel, closeMatch and the aggregate client
// state read. Operations serialize on a mutex so each one sees a consistent
// queue/press snapshot; the deterministic match id plus the store's
// exactly-once CreateMatch covers the cross-process commit race.
type SoulMatchService struct {
	Store    MatchStore
	Clock    clockwork.Clock
	Config   FocusConfig
	Sessions *MatchSessionService

	mu sync.Mutex
}

// PressStartResult is the outcome of pressStart.
type PressStartResult struct {
	OK           bool         `json:"ok"`
	Reason       string       `json:"reason,omitempty"`
	PressEventID string       `json:"pressEventId,omitempty"`
	Reused       bool         `json:"reused"`
	IsReady      bool         `json:"isReady"`
	ServerNow    int64        `json:"serverNow"`
	FocusWindow  *FocusWindow `json:"focusWindow,omitempty"`
}

// PressCommitResult is the outcome of pressCommit.
type PressCommitResult struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	Matched    bool   `json:"matched"`
	MatchID    string `json:"matchId,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	ServerNow  int64  `json:"serverNow"`
}

// PressCancelResult is the outcome of pressCancel. Preserved means the press
// was ready or matched and is latched against retraction.
type PressCancelResult struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	Preserved bool   `json:"preserved"`
	ServerNow int64  `json:"serverNow"`
}

// CloseMatchResult is the outcome of closeMatch.
type CloseMatchResult struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	ServerNow int64  `json:"serverNow"`
}

// pairMatchID is the deterministic match id for an unordered pair inside one
// focus window. Two commits racing for the same pair collide on this id.
func pairMatchID(windowID, a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return windowID + "#" + lo + "#" + hi
}

// focusState resolves the current window and target for one participant.
func (s *SoulMatchService) focusState(entries []models.QueueEntry, selfID string, now int64) (FocusWindow, *models.QueueEntry) {
	available := availableEntries(entries)
	window := GetFocusWindow(now, s.Config)
	target := GetFocusTarget(available, selfID, now, s.Config)
	return window, target
}

// latestLivePress returns the participant's most recent holding/ready press.
func (s *SoulMatchService) latestLivePress(ctx context.Context, queueEntryID string) (*models.PressEvent, error) {
	presses, err := s.Store.QueryPressEventsByQueueEntry(ctx, queueEntryID,
		[]string{models.PressStatusHolding, models.PressStatusReady})
	if err != nil {
		return nil, err
	}
	return latestPress(presses), nil
}

// expireOtherWindowPresses expires every live press the participant holds
// from windows other than the current one, enforcing the one-live-press-per-
// window invariant before a new hold starts.
func (s *SoulMatchService) expireOtherWindowPresses(ctx context.Context, queueEntryID, focusWindowID string) error {
	presses, err := s.Store.QueryPressEventsByQueueEntry(ctx, queueEntryID,
		[]string{models.PressStatusHolding, models.PressStatusReady})
	if err != nil {
		return err
	}
	now := s.Clock.Now().UnixMilli()
	for _, press := range presses {
		if press.FocusWindowID == focusWindowID {
			continue
		}
		if err := s.Store.PutPressEvent(ctx, terminatePress(press, models.PressStatusExpired, now, s.Config)); err != nil {
			return err
		}
	}
	return nil
}

// PressStart begins a hold aimed at the caller's current focus target.
// Idempotent per (window, target): restarting the same hold returns the
// existing press.
func (s *SoulMatchService) PressStart(ctx context.Context, queueEntryID, targetQueueEntryID, focusWindowID string) (*PressStartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	queue, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	if !isQueueEntryActive(queue, now, s.Config) {
		return &PressStartResult{OK: false, Reason: ReasonQueueInactive, ServerNow: now}, nil
	}
	if queue.ActiveMatchID != nil {
		return &PressStartResult{OK: false, Reason: ReasonAlreadyMatched, ServerNow: now}, nil
	}

	entries, err := getActiveQueueEntries(ctx, s.Store, now, s.Config)
	if err != nil {
		return nil, err
	}
	window, target := s.focusState(entries, queue.QueueEntryID, now)
	if window.ID != focusWindowID {
		return &PressStartResult{OK: false, Reason: ReasonFocusWindowMoved, ServerNow: now, FocusWindow: &window}, nil
	}
	if target == nil || target.QueueEntryID != targetQueueEntryID {
		return &PressStartResult{OK: false, Reason: ReasonInvalidTarget, ServerNow: now, FocusWindow: &window}, nil
	}

	if err := s.expireOtherWindowPresses(ctx, queue.QueueEntryID, window.ID); err != nil {
		return nil, err
	}

	current, err := s.latestLivePress(ctx, queue.QueueEntryID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.FocusWindowID == window.ID &&
		current.TargetQueueEntryID != nil && *current.TargetQueueEntryID == targetQueueEntryID {
		return &PressStartResult{
			OK:           true,
			PressEventID: current.PressEventID,
			Reused:       true,
			IsReady:      current.Status == models.PressStatusReady,
			ServerNow:    now,
			FocusWindow:  &window,
		}, nil
	}

	press := models.PressEvent{
		PressEventID:       uuid.NewString(),
		QueueEntryID:       queue.QueueEntryID,
		ParticipantKey:     queue.ParticipantKey,
		TargetQueueEntryID: &targetQueueEntryID,
		FocusWindowID:      window.ID,
		PressStartedAt:     now,
		Status:             models.PressStatusHolding,
		CreatedAt:          now,
	}
	if err := s.Store.PutPressEvent(ctx, press); err != nil {
		return nil, err
	}

	queue.QueueStatus = models.QueueStatusMatching
	queue.LastHeartbeatAt = now
	queue.LastPressAt = &now
	if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
		return nil, err
	}

	return &PressStartResult{
		OK:           true,
		PressEventID: press.PressEventID,
		ServerNow:    now,
		FocusWindow:  &window,
	}, nil
}

// PressCommit finalizes a hold. When the partner's reciprocal press is already
// ready in the same window, both sides are matched atomically; otherwise the
// caller waits for the partner to commit.
func (s *SoulMatchService) PressCommit(ctx context.Context, queueEntryID, pressEventID, targetQueueEntryID, focusWindowID string) (*PressCommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	queue, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	press, err := s.Store.GetPressEvent(ctx, pressEventID)
	if err != nil {
		return nil, err
	}
	if queue == nil || press == nil || press.QueueEntryID != queueEntryID {
		return &PressCommitResult{OK: false, Reason: ReasonMissingPress, ServerNow: now}, nil
	}
	if !isQueueEntryActive(queue, now, s.Config) {
		return &PressCommitResult{OK: false, Reason: ReasonQueueInactive, ServerNow: now}, nil
	}
	if queue.ActiveMatchID != nil {
		// The partner's commit already landed; report the match.
		return &PressCommitResult{OK: true, Matched: true, MatchID: *queue.ActiveMatchID, ServerNow: now}, nil
	}

	entries, err := getActiveQueueEntries(ctx, s.Store, now, s.Config)
	if err != nil {
		return nil, err
	}
	window, target := s.focusState(entries, queue.QueueEntryID, now)
	if window.ID != focusWindowID || press.FocusWindowID != focusWindowID {
		if err := s.Store.PutPressEvent(ctx, terminatePress(*press, models.PressStatusExpired, now, s.Config)); err != nil {
			return nil, err
		}
		return &PressCommitResult{OK: false, Reason: ReasonFocusWindowMoved, ServerNow: now}, nil
	}
	if target == nil || target.QueueEntryID != targetQueueEntryID ||
		press.TargetQueueEntryID == nil || *press.TargetQueueEntryID != targetQueueEntryID {
		return &PressCommitResult{OK: false, Reason: ReasonInvalidTarget, ServerNow: now}, nil
	}
	if press.Status != models.PressStatusHolding && press.Status != models.PressStatusReady {
		return &PressCommitResult{OK: false, Reason: ReasonPressNotHolding, ServerNow: now}, nil
	}
	if !CanCommitHoldWithinWindow(press.PressStartedAt, window.EndsAt, s.Config) {
		// The hold started too late in the window to ever reach minimum
		// duration before rotation; it can never become committable.
		if err := s.Store.PutPressEvent(ctx, terminatePress(*press, models.PressStatusExpired, now, s.Config)); err != nil {
			return nil, err
		}
		queue.QueueStatus = models.QueueStatusQueued
		queue.LastHeartbeatAt = now
		if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
			return nil, err
		}
		return &PressCommitResult{OK: true, Reason: ReasonWindowExpired, ServerNow: now}, nil
	}

	readyAt := now
	if press.ReadyAt != nil {
		readyAt = *press.ReadyAt
	} else {
		if window.EndsAt < readyAt {
			readyAt = window.EndsAt
		}
		if earliest := press.PressStartedAt + s.Config.MinHoldMs; earliest < readyAt {
			readyAt = earliest
		}
	}
	durationMs := readyAt - press.PressStartedAt
	if durationMs < 0 {
		durationMs = 0
	}
	if durationMs < s.Config.MinHoldMs {
		// Hold preserved; the caller retries once enough time has passed.
		return &PressCommitResult{OK: true, Reason: ReasonMinHold, DurationMs: &durationMs, ServerNow: now}, nil
	}

	press.Status = models.PressStatusReady
	press.ReadyAt = &readyAt
	press.PressEndedAt = &readyAt
	press.DurationMs = &durationMs
	if err := s.Store.PutPressEvent(ctx, *press); err != nil {
		return nil, err
	}

	queue.QueueStatus = models.QueueStatusMatching
	queue.LastHeartbeatAt = now
	queue.LastPressAt = &readyAt
	if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
		return nil, err
	}

	targetQueue, err := s.Store.GetQueueEntry(ctx, targetQueueEntryID)
	if err != nil {
		return nil, err
	}
	if !isQueueEntryActive(targetQueue, now, s.Config) || targetQueue.ActiveMatchID != nil {
		return &PressCommitResult{OK: true, Reason: ReasonWaitingReciprocal, ServerNow: now}, nil
	}

	// Targeting is not necessarily symmetric with 3+ candidates; require the
	// partner to actually be pointed back at us this window.
	partnerTarget := GetFocusTarget(availableEntries(entries), targetQueue.QueueEntryID, now, s.Config)
	if partnerTarget == nil || partnerTarget.QueueEntryID != queue.QueueEntryID {
		return &PressCommitResult{OK: true, Reason: ReasonWaitingReciprocal, ServerNow: now}, nil
	}

	reciprocal, err := s.Store.QueryPressEventsByTarget(ctx, queue.QueueEntryID, []string{models.PressStatusReady})
	if err != nil {
		return nil, err
	}
	var partnerPress *models.PressEvent
	for i := range reciprocal {
		candidate := &reciprocal[i]
		if candidate.QueueEntryID != targetQueueEntryID || candidate.FocusWindowID != focusWindowID {
			continue
		}
		if partnerPress == nil || candidate.CreatedAt > partnerPress.CreatedAt {
			partnerPress = candidate
		}
	}
	if partnerPress == nil {
		return &PressCommitResult{OK: true, Reason: ReasonWaitingReciprocal, ServerNow: now}, nil
	}

	match, err := s.createPairMatch(ctx, now, queue, targetQueue, press, partnerPress, window)
	if err != nil {
		return nil, err
	}
	return &PressCommitResult{OK: true, Matched: true, MatchID: match.MatchID, ServerNow: now}, nil
}

// createPairMatch inserts the match for a confirmed reciprocal pair, marking
// both presses and both queue entries. The pre-insert existing-match check is
// what keeps two racing commits from minting two matches.
func (s *SoulMatchService) createPairMatch(ctx context.Context, now int64, queue, targetQueue *models.QueueEntry, selfPress, partnerPress *models.PressEvent, window FocusWindow) (*models.Match, error) {
	matchID := pairMatchID(window.ID, queue.QueueEntryID, targetQueue.QueueEntryID)

	overlapMs := int64(0)
	if selfPress.ReadyAt != nil && partnerPress.ReadyAt != nil {
		if overlap := IntervalOverlap(
			Interval{Start: selfPress.PressStartedAt, End: *selfPress.ReadyAt},
			Interval{Start: partnerPress.PressStartedAt, End: *partnerPress.ReadyAt},
		); overlap != nil {
			overlapMs = overlap.OverlapMs
		}
	}

	match, created, err := s.Store.CreateMatch(ctx, models.Match{
		MatchID:           matchID,
		UserAQueueEntryID: queue.QueueEntryID,
		UserBQueueEntryID: targetQueue.QueueEntryID,
		UserAPressEventID: selfPress.PressEventID,
		UserBPressEventID: partnerPress.PressEventID,
		WindowID:          window.ID,
		MatchWindowStart:  window.StartsAt,
		MatchWindowEnd:    window.EndsAt,
		OverlapMs:         overlapMs,
		Status:            models.MatchStatusPendingIntro,
		CreatedAt:         now,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return match, nil
	}

	selfPress.Status = models.PressStatusMatched
	selfPress.MatchID = &match.MatchID
	if err := s.Store.PutPressEvent(ctx, *selfPress); err != nil {
		return nil, err
	}
	partnerPress.Status = models.PressStatusMatched
	partnerPress.MatchID = &match.MatchID
	if err := s.Store.PutPressEvent(ctx, *partnerPress); err != nil {
		return nil, err
	}

	for _, entry := range []*models.QueueEntry{queue, targetQueue} {
		entry.ActiveMatchID = &match.MatchID
		entry.QueueStatus = models.QueueStatusMatched
		entry.LastHeartbeatAt = now
		if err := s.Store.PutQueueEntry(ctx, *entry); err != nil {
			return nil, err
		}
	}

	if s.Sessions != nil {
		session, err := s.Sessions.OpenForMatch(ctx, match)
		if err != nil {
			return nil, err
		}
		match.SessionID = &session.SessionID
		if err := s.Store.PutMatch(ctx, *match); err != nil {
			return nil, err
		}
	}

	log.Printf("💞 Match %s created in window %s", match.MatchID, window.ID)
	return match, nil
}

// PressCancel retracts a hold. Ready and matched presses are latched: the
// partner may already be acting on them, so cancel reports preserved instead.
func (s *SoulMatchService) PressCancel(ctx context.Context, queueEntryID, pressEventID string) (*PressCancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	queue, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	press, err := s.Store.GetPressEvent(ctx, pressEventID)
	if err != nil {
		return nil, err
	}
	if queue == nil || press == nil || press.QueueEntryID != queueEntryID {
		return &PressCancelResult{OK: false, Reason: ReasonMissingPress, ServerNow: now}, nil
	}

	if press.Status == models.PressStatusReady || press.Status == models.PressStatusMatched {
		return &PressCancelResult{OK: true, Preserved: true, ServerNow: now}, nil
	}
	if press.Status != models.PressStatusHolding {
		return &PressCancelResult{OK: false, Reason: ReasonPressNotHolding, ServerNow: now}, nil
	}

	if err := s.Store.PutPressEvent(ctx, terminatePress(*press, models.PressStatusCancelled, now, s.Config)); err != nil {
		return nil, err
	}

	if queue.ActiveMatchID != nil {
		queue.QueueStatus = models.QueueStatusMatched
	} else {
		queue.QueueStatus = models.QueueStatusQueued
	}
	queue.LastHeartbeatAt = now
	if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
		return nil, err
	}
	return &PressCancelResult{OK: true, ServerNow: now}, nil
}

// CloseMatch ends a match and returns both participants to the queue.
// Idempotent: closing an already-closed match succeeds.
func (s *SoulMatchService) CloseMatch(ctx context.Context, queueEntryID, matchID string) (*CloseMatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	match, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return &CloseMatchResult{OK: false, Reason: ReasonMissing, ServerNow: now}, nil
	}
	if !match.Involves(queueEntryID) {
		return &CloseMatchResult{OK: false, Reason: ReasonAccessDenied, ServerNow: now}, nil
	}
	if !match.IsOpen() {
		return &CloseMatchResult{OK: true, ServerNow: now}, nil
	}

	match.Status = models.MatchStatusEnded
	if err := s.Store.PutMatch(ctx, *match); err != nil {
		return nil, err
	}
	if s.Sessions != nil {
		if err := s.Sessions.EndForMatch(ctx, match.MatchID); err != nil {
			return nil, err
		}
	}

	for _, participantID := range []string{match.UserAQueueEntryID, match.UserBQueueEntryID} {
		entry, err := s.Store.GetQueueEntry(ctx, participantID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		entry.ActiveMatchID = nil
		if entry.IsActive {
			entry.QueueStatus = models.QueueStatusQueued
		}
		entry.LastHeartbeatAt = now
		if err := s.Store.PutQueueEntry(ctx, *entry); err != nil {
			return nil, err
		}

		// Force-cancel leftover same-window holds so stale "still holding"
		// state does not linger after the match ends.
		presses, err := s.Store.QueryPressEventsByQueueEntry(ctx, participantID,
			[]string{models.PressStatusHolding, models.PressStatusReady})
		if err != nil {
			return nil, err
		}
		for _, press := range presses {
			if press.FocusWindowID != match.WindowID {
				continue
			}
			if err := s.Store.PutPressEvent(ctx, terminatePress(press, models.PressStatusCancelled, now, s.Config)); err != nil {
				return nil, err
			}
		}
	}

	log.Printf("👋 Match %s closed by %s", matchID, queueEntryID)
	return &CloseMatchResult{OK: true, ServerNow: now}, nil
}
