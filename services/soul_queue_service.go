package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"pulse_server/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SoulQueueService owns participant lifecycle: join, heartbeat, leave, the
// queue snapshot, and the staleness sweep.
type SoulQueueService struct {
	Store  MatchStore
	Clock  clockwork.Clock
	Config FocusConfig
}

// JoinQueueRequest carries the identity supplied by the upstream auth layer.
type JoinQueueRequest struct {
	AuthUserID    string `json:"authUserId" validate:"omitempty,max=128"`
	ProfileUserID string `json:"profileUserId" validate:"omitempty,max=128"`
	Username      string `json:"username" validate:"omitempty,max=64"`
	AvatarID      string `json:"avatarId" validate:"omitempty,max=128"`
}

// JoinQueueResult is the join outcome.
type JoinQueueResult struct {
	QueueEntryID string `json:"queueEntryId"`
	Status       string `json:"status"`
	JoinedAt     int64  `json:"joinedAt"`
	ServerNow    int64  `json:"serverNow"`
}

// HeartbeatResult reports a heartbeat outcome; Reason is "missing" when the
// entry does not exist.
type HeartbeatResult struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	ServerNow int64  `json:"serverNow"`
}

// SweepResult counts what the staleness sweep touched.
type SweepResult struct {
	StaleQueueEntries int `json:"staleQueueEntries"`
	ExpiredPresses    int `json:"expiredPresses"`
}

// participantKey derives the stable identity key for a join request.
func participantKey(req JoinQueueRequest) string {
	if key := strings.TrimSpace(req.AuthUserID); key != "" {
		return key
	}
	if key := strings.TrimSpace(req.ProfileUserID); key != "" {
		return key
	}
	return strings.ToLower(strings.TrimSpace(req.Username))
}

// isQueueEntryActive applies the staleness threshold on top of the active flag.
func isQueueEntryActive(entry *models.QueueEntry, now int64, config FocusConfig) bool {
	return entry != nil && entry.IsActive && entry.LastHeartbeatAt >= now-config.QueueStaleAfterMs
}

// getActiveQueueEntries loads the current candidate-eligible set, sorted into
// the stable queue order.
func getActiveQueueEntries(ctx context.Context, store MatchStore, now int64, config FocusConfig) ([]models.QueueEntry, error) {
	entries, err := store.QueryActiveQueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	fresh := entries[:0]
	for i := range entries {
		if isQueueEntryActive(&entries[i], now, config) {
			fresh = append(fresh, entries[i])
		}
	}
	return SortQueueEntries(fresh), nil
}

// availableEntries filters out entries already bound to a match.
func availableEntries(entries []models.QueueEntry) []models.QueueEntry {
	available := make([]models.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ActiveMatchID == nil {
			available = append(available, entry)
		}
	}
	return available
}

// terminatePress stamps a press with a terminal status and clamped duration.
func terminatePress(press models.PressEvent, status string, now int64, config FocusConfig) models.PressEvent {
	press.Status = status
	if press.PressEndedAt == nil {
		ended := now
		press.PressEndedAt = &ended
	}
	if press.DurationMs == nil {
		duration := ClampPressEnd(press.PressStartedAt, now, config) - press.PressStartedAt
		if duration < 0 {
			duration = 0
		}
		press.DurationMs = &duration
	}
	return press
}

// JoinQueue upserts the participant's queue entry. Re-joining while an entry
// is still fresh reuses it, so client retries never fork a second identity.
func (s *SoulQueueService) JoinQueue(ctx context.Context, req JoinQueueRequest) (*JoinQueueResult, error) {
	now := s.Clock.Now().UnixMilli()
	key := participantKey(req)
	if key == "" {
		return nil, fmt.Errorf("missing participant identity")
	}

	existing, err := s.Store.QueryQueueEntriesByParticipantKey(ctx, key)
	if err != nil {
		return nil, err
	}

	var active *models.QueueEntry
	for i := range existing {
		if !isQueueEntryActive(&existing[i], now, s.Config) {
			continue
		}
		if active == nil || existing[i].JoinedAt > active.JoinedAt {
			active = &existing[i]
		}
	}

	if active != nil {
		active.AuthUserID = req.AuthUserID
		active.ProfileUserID = req.ProfileUserID
		active.Username = req.Username
		active.AvatarID = req.AvatarID
		active.IsActive = true
		active.LastHeartbeatAt = now
		if active.ActiveMatchID != nil {
			active.QueueStatus = models.QueueStatusMatched
		} else {
			active.QueueStatus = models.QueueStatusQueued
		}
		if err := s.Store.PutQueueEntry(ctx, *active); err != nil {
			return nil, err
		}
		return &JoinQueueResult{
			QueueEntryID: active.QueueEntryID,
			Status:       active.QueueStatus,
			JoinedAt:     active.JoinedAt,
			ServerNow:    now,
		}, nil
	}

	entry := models.QueueEntry{
		QueueEntryID:    uuid.NewString(),
		ParticipantKey:  key,
		AuthUserID:      req.AuthUserID,
		ProfileUserID:   req.ProfileUserID,
		Username:        req.Username,
		AvatarID:        req.AvatarID,
		IsActive:        true,
		QueueStatus:     models.QueueStatusQueued,
		JoinedAt:        now,
		LastHeartbeatAt: now,
	}
	if err := s.Store.PutQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	log.Printf("👥 Queue join: %s (%s)", entry.QueueEntryID, key)
	return &JoinQueueResult{
		QueueEntryID: entry.QueueEntryID,
		Status:       entry.QueueStatus,
		JoinedAt:     now,
		ServerNow:    now,
	}, nil
}

// Heartbeat refreshes lastHeartbeatAt and reconciles the queue status against
// any active match.
func (s *SoulQueueService) Heartbeat(ctx context.Context, queueEntryID string) (*HeartbeatResult, error) {
	now := s.Clock.Now().UnixMilli()
	entry, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &HeartbeatResult{OK: false, Reason: "missing", ServerNow: now}, nil
	}

	entry.IsActive = true
	entry.LastHeartbeatAt = now
	switch {
	case entry.ActiveMatchID != nil:
		entry.QueueStatus = models.QueueStatusMatched
	case entry.QueueStatus == models.QueueStatusMatching:
		// keep matching, a hold is in flight
	default:
		entry.QueueStatus = models.QueueStatusQueued
	}
	if err := s.Store.PutQueueEntry(ctx, *entry); err != nil {
		return nil, err
	}
	return &HeartbeatResult{OK: true, ServerNow: now}, nil
}

// LeaveQueue deactivates the entry and cancels any in-flight holds.
// Idempotent: leaving twice, or with an unknown id, succeeds.
func (s *SoulQueueService) LeaveQueue(ctx context.Context, queueEntryID string) error {
	now := s.Clock.Now().UnixMilli()
	entry, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	entry.IsActive = false
	if entry.ActiveMatchID == nil {
		entry.QueueStatus = models.QueueStatusQueued
	}
	if err := s.Store.PutQueueEntry(ctx, *entry); err != nil {
		return err
	}

	presses, err := s.Store.QueryPressEventsByQueueEntry(ctx, queueEntryID,
		[]string{models.PressStatusHolding, models.PressStatusReady, models.PressStatusPending})
	if err != nil {
		return err
	}
	for _, press := range presses {
		if err := s.Store.PutPressEvent(ctx, terminatePress(press, models.PressStatusCancelled, now, s.Config)); err != nil {
			return err
		}
	}
	return nil
}

// QueueSnapshotView is the read-only presence view.
type QueueSnapshotView struct {
	Self             *QueueSelfView       `json:"self"`
	OnlineCandidates []QueueCandidateView `json:"onlineCandidates"`
	QueueCount       int                  `json:"queueCount"`
	EstimatedWaitMs  *int64               `json:"estimatedWaitMs,omitempty"`
	Status           string               `json:"status"`
	ServerNow        int64                `json:"serverNow"`
}

type QueueSelfView struct {
	QueueEntryID    string `json:"queueEntryId"`
	Username        string `json:"username,omitempty"`
	AvatarID        string `json:"avatarId,omitempty"`
	IsActive        bool   `json:"isActive"`
	JoinedAt        int64  `json:"joinedAt"`
	LastHeartbeatAt int64  `json:"lastHeartbeatAt"`
}

type QueueCandidateView struct {
	QueueEntryID    string `json:"queueEntryId"`
	Username        string `json:"username,omitempty"`
	AvatarID        string `json:"avatarId,omitempty"`
	JoinedAt        int64  `json:"joinedAt"`
	LastHeartbeatAt int64  `json:"lastHeartbeatAt"`
}

// GetQueueSnapshot returns who is online, capped at 12 candidates like the
// client grid expects.
func (s *SoulQueueService) GetQueueSnapshot(ctx context.Context, queueEntryID string) (*QueueSnapshotView, error) {
	now := s.Clock.Now().UnixMilli()
	entries, err := getActiveQueueEntries(ctx, s.Store, now, s.Config)
	if err != nil {
		return nil, err
	}

	var self *models.QueueEntry
	if queueEntryID != "" {
		self, err = s.Store.GetQueueEntry(ctx, queueEntryID)
		if err != nil {
			return nil, err
		}
		if !isQueueEntryActive(self, now, s.Config) {
			self = nil
		}
	}

	snapshot := &QueueSnapshotView{
		QueueCount: len(entries),
		Status:     "inactive",
		ServerNow:  now,
	}
	if len(entries) > 1 {
		wait := int64(10_000)
		snapshot.EstimatedWaitMs = &wait
	}
	for _, entry := range entries {
		if self != nil && entry.QueueEntryID == self.QueueEntryID {
			continue
		}
		if len(snapshot.OnlineCandidates) >= 12 {
			break
		}
		snapshot.OnlineCandidates = append(snapshot.OnlineCandidates, QueueCandidateView{
			QueueEntryID:    entry.QueueEntryID,
			Username:        entry.Username,
			AvatarID:        entry.AvatarID,
			JoinedAt:        entry.JoinedAt,
			LastHeartbeatAt: entry.LastHeartbeatAt,
		})
	}
	if self != nil {
		snapshot.Self = &QueueSelfView{
			QueueEntryID:    self.QueueEntryID,
			Username:        self.Username,
			AvatarID:        self.AvatarID,
			IsActive:        self.IsActive,
			JoinedAt:        self.JoinedAt,
			LastHeartbeatAt: self.LastHeartbeatAt,
		}
		if self.ActiveMatchID != nil {
			snapshot.Status = models.QueueStatusMatched
		} else {
			snapshot.Status = models.QueueStatusQueued
		}
	}
	return snapshot, nil
}

// SweepStale deactivates silent participants and expires orphaned presses
// whose window fully elapsed or whose age passed the staleness threshold.
func (s *SoulQueueService) SweepStale(ctx context.Context) (*SweepResult, error) {
	now := s.Clock.Now().UnixMilli()
	result := &SweepResult{}

	entries, err := s.Store.QueryActiveQueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if isQueueEntryActive(&entries[i], now, s.Config) {
			continue
		}
		entries[i].IsActive = false
		entries[i].QueueStatus = models.QueueStatusQueued
		if err := s.Store.PutQueueEntry(ctx, entries[i]); err != nil {
			return nil, err
		}
		result.StaleQueueEntries++
	}

	for _, status := range []string{models.PressStatusHolding, models.PressStatusReady, models.PressStatusPending} {
		presses, err := s.Store.QueryPressEventsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, press := range presses {
			windowEndsAt := s.pressWindowEnd(press)
			if now <= windowEndsAt && now-press.PressStartedAt <= s.Config.QueueStaleAfterMs {
				continue
			}
			if err := s.Store.PutPressEvent(ctx, terminatePress(press, models.PressStatusExpired, now, s.Config)); err != nil {
				return nil, err
			}
			result.ExpiredPresses++
		}
	}

	if result.StaleQueueEntries > 0 || result.ExpiredPresses > 0 {
		log.Printf("🧹 Queue sweep: %d stale entries, %d expired presses", result.StaleQueueEntries, result.ExpiredPresses)
	}
	return result, nil
}

// pressWindowEnd resolves the end of the press's focus window, falling back to
// the window the press started in when the press has no recorded window id.
func (s *SoulQueueService) pressWindowEnd(press models.PressEvent) int64 {
	if press.FocusWindowID != "" {
		if startsAt, err := strconv.ParseInt(press.FocusWindowID, 10, 64); err == nil {
			return startsAt + s.Config.FocusWindowMs
		}
	}
	return GetFocusWindow(press.PressStartedAt, s.Config).EndsAt
}
