package services

import (
	"context"
	"log"
	"sort"
	"sync"

	"pulse_server/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// OverlapMatchService is the alternate matching strategy: holds are untargeted
// pending presses, and any two whose time intervals overlap long enough are
// paired. First fit in recency order, not best fit.
type OverlapMatchService struct {
	Store    MatchStore
	Clock    clockwork.Clock
	Config   FocusConfig
	Sessions *MatchSessionService

	mu sync.Mutex
}

// HoldStartResult is the outcome of HoldStart.
type HoldStartResult struct {
	OK           bool   `json:"ok"`
	Reason       string `json:"reason,omitempty"`
	PressEventID string `json:"pressEventId,omitempty"`
	Reused       bool   `json:"reused"`
	ServerNow    int64  `json:"serverNow"`
}

// HoldEndResult is the outcome of HoldEnd.
type HoldEndResult struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	Matched    bool   `json:"matched"`
	MatchID    string `json:"matchId,omitempty"`
	OverlapMs  int64  `json:"overlapMs,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	ServerNow  int64  `json:"serverNow"`
}

// HoldStart opens an untargeted pending hold. A still-open hold from the same
// window is reused so client retries stay idempotent; older holds are expired
// to keep one live press per participant.
func (s *OverlapMatchService) HoldStart(ctx context.Context, queueEntryID string) (*HoldStartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	queue, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	if !isQueueEntryActive(queue, now, s.Config) {
		return &HoldStartResult{OK: false, Reason: ReasonQueueInactive, ServerNow: now}, nil
	}
	if queue.ActiveMatchID != nil {
		return &HoldStartResult{OK: false, Reason: ReasonAlreadyMatched, ServerNow: now}, nil
	}

	window := GetFocusWindow(now, s.Config)
	live, err := s.Store.QueryPressEventsByQueueEntry(ctx, queueEntryID, []string{models.PressStatusPending})
	if err != nil {
		return nil, err
	}
	for _, press := range live {
		if press.FocusWindowID == window.ID && press.PressEndedAt == nil {
			return &HoldStartResult{OK: true, PressEventID: press.PressEventID, Reused: true, ServerNow: now}, nil
		}
		if err := s.Store.PutPressEvent(ctx, terminatePress(press, models.PressStatusExpired, now, s.Config)); err != nil {
			return nil, err
		}
	}

	press := models.PressEvent{
		PressEventID:   uuid.NewString(),
		QueueEntryID:   queue.QueueEntryID,
		ParticipantKey: queue.ParticipantKey,
		FocusWindowID:  window.ID,
		PressStartedAt: now,
		Status:         models.PressStatusPending,
		CreatedAt:      now,
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
	return &HoldStartResult{OK: true, PressEventID: press.PressEventID, ServerNow: now}, nil
}

// HoldEnd closes a hold and tries to pair it against every other pending
// hold. Holds shorter than the minimum expire with min_hold; otherwise the
// press stays pending with its interval recorded, ready to be found by a
// later partner's HoldEnd.
func (s *OverlapMatchService) HoldEnd(ctx context.Context, queueEntryID, pressEventID string) (*HoldEndResult, error) {
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
		return &HoldEndResult{OK: false, Reason: ReasonMissingPress, ServerNow: now}, nil
	}
	if press.Status != models.PressStatusPending {
		return &HoldEndResult{OK: false, Reason: ReasonPressNotHolding, ServerNow: now}, nil
	}
	if !isQueueEntryActive(queue, now, s.Config) {
		return &HoldEndResult{OK: false, Reason: ReasonQueueInactive, ServerNow: now}, nil
	}

	end := ClampPressEnd(press.PressStartedAt, now, s.Config)
	durationMs := end - press.PressStartedAt
	if durationMs < s.Config.MinHoldMs {
		if err := s.Store.PutPressEvent(ctx, terminatePress(*press, models.PressStatusExpired, now, s.Config)); err != nil {
			return nil, err
		}
		queue.QueueStatus = models.QueueStatusQueued
		queue.LastHeartbeatAt = now
		if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
			return nil, err
		}
		return &HoldEndResult{OK: true, Reason: ReasonMinHold, DurationMs: &durationMs, ServerNow: now}, nil
	}

	press.PressEndedAt = &end
	press.DurationMs = &durationMs
	if err := s.Store.PutPressEvent(ctx, *press); err != nil {
		return nil, err
	}

	partner, overlap, err := s.findOverlapPartner(ctx, queue, press, now)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		queue.LastHeartbeatAt = now
		queue.LastPressAt = &end
		if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
			return nil, err
		}
		return &HoldEndResult{OK: true, DurationMs: &durationMs, ServerNow: now}, nil
	}

	match, err := s.createOverlapMatch(ctx, now, queue, press, partner, overlap)
	if err != nil {
		return nil, err
	}
	return &HoldEndResult{
		OK:         true,
		Matched:    true,
		MatchID:    match.MatchID,
		OverlapMs:  match.OverlapMs,
		DurationMs: &durationMs,
		ServerNow:  now,
	}, nil
}

// HoldCancel retracts a pending hold. Matched presses are latched.
func (s *OverlapMatchService) HoldCancel(ctx context.Context, queueEntryID, pressEventID string) (*PressCancelResult, error) {
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
	if press.Status == models.PressStatusMatched {
		return &PressCancelResult{OK: true, Preserved: true, ServerNow: now}, nil
	}
	if press.Status != models.PressStatusPending {
		return &PressCancelResult{OK: false, Reason: ReasonPressNotHolding, ServerNow: now}, nil
	}

	if err := s.Store.PutPressEvent(ctx, terminatePress(*press, models.PressStatusCancelled, now, s.Config)); err != nil {
		return nil, err
	}
	if queue.ActiveMatchID == nil {
		queue.QueueStatus = models.QueueStatusQueued
	}
	queue.LastHeartbeatAt = now
	if err := s.Store.PutQueueEntry(ctx, *queue); err != nil {
		return nil, err
	}
	return &PressCancelResult{OK: true, ServerNow: now}, nil
}

// findOverlapPartner scans other pending presses newest-first and returns the
// first whose interval overlaps ours by at least the minimum. Recency order is
// deliberate: a participant pairs with their latest-arriving compatible
// partner, not the oldest waiter.
func (s *OverlapMatchService) findOverlapPartner(ctx context.Context, queue *models.QueueEntry, press *models.PressEvent, now int64) (*models.PressEvent, *Overlap, error) {
	candidates, err := s.Store.QueryPressEventsByStatus(ctx, models.PressStatusPending)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt > candidates[j].CreatedAt
	})

	selfInterval := Interval{Start: press.PressStartedAt, End: *press.PressEndedAt}
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.PressEventID == press.PressEventID || candidate.QueueEntryID == queue.QueueEntryID {
			continue
		}
		if candidate.MatchID != nil {
			continue
		}
		if candidate.TargetQueueEntryID != nil && *candidate.TargetQueueEntryID != queue.QueueEntryID {
			continue
		}

		partnerQueue, err := s.Store.GetQueueEntry(ctx, candidate.QueueEntryID)
		if err != nil {
			return nil, nil, err
		}
		if !isQueueEntryActive(partnerQueue, now, s.Config) || partnerQueue.ActiveMatchID != nil {
			continue
		}

		candidateEnd := now
		if candidate.PressEndedAt != nil {
			candidateEnd = *candidate.PressEndedAt
		}
		candidateEnd = ClampPressEnd(candidate.PressStartedAt, candidateEnd, s.Config)

		overlap := IntervalOverlap(selfInterval, Interval{Start: candidate.PressStartedAt, End: candidateEnd})
		if overlap == nil || overlap.OverlapMs < s.Config.MinOverlapMs {
			continue
		}
		return candidate, overlap, nil
	}
	return nil, nil, nil
}

// createOverlapMatch inserts the match for an overlapping pair and consumes
// both presses. The deterministic id keyed on the initiator's window plus the
// store's conditional insert keeps a racing pair from minting two matches.
func (s *OverlapMatchService) createOverlapMatch(ctx context.Context, now int64, queue *models.QueueEntry, press, partnerPress *models.PressEvent, overlap *Overlap) (*models.Match, error) {
	partnerQueue, err := s.Store.GetQueueEntry(ctx, partnerPress.QueueEntryID)
	if err != nil {
		return nil, err
	}

	matchID := pairMatchID(press.FocusWindowID, queue.QueueEntryID, partnerPress.QueueEntryID)
	match, created, err := s.Store.CreateMatch(ctx, models.Match{
		MatchID:           matchID,
		UserAQueueEntryID: queue.QueueEntryID,
		UserBQueueEntryID: partnerPress.QueueEntryID,
		UserAPressEventID: press.PressEventID,
		UserBPressEventID: partnerPress.PressEventID,
		WindowID:          press.FocusWindowID,
		MatchWindowStart:  overlap.Start,
		MatchWindowEnd:    overlap.End,
		OverlapMs:         overlap.OverlapMs,
		Status:            models.MatchStatusPendingIntro,
		CreatedAt:         now,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return match, nil
	}

	for _, consumed := range []*models.PressEvent{press, partnerPress} {
		consumed.Status = models.PressStatusMatched
		consumed.MatchID = &match.MatchID
		if err := s.Store.PutPressEvent(ctx, *consumed); err != nil {
			return nil, err
		}
	}
	for _, entry := range []*models.QueueEntry{queue, partnerQueue} {
		if entry == nil {
			continue
		}
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

	log.Printf("💞 Overlap match %s (%dms) in window %s", match.MatchID, match.OverlapMs, match.WindowID)
	return match, nil
}
