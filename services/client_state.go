package services

import (
	"context"

	"pulse_server/models"
)

// CandidateView is the public slice of a queue entry shown to other clients.
type CandidateView struct {
	QueueEntryID string `json:"queueEntryId"`
	Username     string `json:"username"`
	AvatarID     string `json:"avatarId,omitempty"`
	JoinedAt     int64  `json:"joinedAt"`
}

// HoldView describes a live press for rendering the hold ring.
type HoldView struct {
	PressEventID  string  `json:"pressEventId"`
	Status        string  `json:"status"`
	StartedAt     int64   `json:"startedAt"`
	ProgressMs    int64   `json:"progressMs"`
	ProgressRatio float64 `json:"progressRatio"`
	IsReady       bool    `json:"isReady"`
}

// ActiveMatchView is the caller's open match, if any, with the partner's
// public info resolved.
type ActiveMatchView struct {
	MatchID   string         `json:"matchId"`
	Status    string         `json:"status"`
	SessionID *string        `json:"sessionId,omitempty"`
	CreatedAt int64          `json:"createdAt"`
	Partner   *CandidateView `json:"partner,omitempty"`
}

// ClientState is the single poll payload driving the whole client UI.
type ClientState struct {
	ServerNow             int64            `json:"serverNow"`
	QueueActive           bool             `json:"queueActive"`
	FocusWindow           FocusWindow      `json:"focusWindow"`
	FocusTarget           *CandidateView   `json:"focusTarget,omitempty"`
	SelfHold              *HoldView        `json:"selfHold,omitempty"`
	PartnerReciprocalHold *HoldView        `json:"partnerReciprocalHold,omitempty"`
	Candidates            []CandidateView  `json:"candidates"`
	ActiveMatch           *ActiveMatchView `json:"activeMatch,omitempty"`
}

func candidateView(entry *models.QueueEntry) *CandidateView {
	if entry == nil {
		return nil
	}
	return &CandidateView{
		QueueEntryID: entry.QueueEntryID,
		Username:     entry.Username,
		AvatarID:     entry.AvatarID,
		JoinedAt:     entry.JoinedAt,
	}
}

func (s *SoulMatchService) holdView(press *models.PressEvent, now int64) *HoldView {
	if press == nil {
		return nil
	}
	progress := GetHoldProgress(now, press.PressStartedAt, s.Config)
	return &HoldView{
		PressEventID:  press.PressEventID,
		Status:        press.Status,
		StartedAt:     press.PressStartedAt,
		ProgressMs:    progress.ProgressMs,
		ProgressRatio: progress.ProgressRatio,
		IsReady:       press.Status == models.PressStatusReady,
	}
}

// GetClientState builds the full poll payload for one participant: the
// current focus window, their rotation target, their own live hold, the
// target's reciprocal hold aimed back at them, the candidate list, and any
// open match.
func (s *SoulMatchService) GetClientState(ctx context.Context, queueEntryID string) (*ClientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().UnixMilli()
	queue, err := s.Store.GetQueueEntry(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}

	state := &ClientState{
		ServerNow:   now,
		FocusWindow: GetFocusWindow(now, s.Config),
		Candidates:  []CandidateView{},
	}
	if queue == nil {
		return state, nil
	}
	state.QueueActive = isQueueEntryActive(queue, now, s.Config)

	entries, err := getActiveQueueEntries(ctx, s.Store, now, s.Config)
	if err != nil {
		return nil, err
	}
	available := availableEntries(entries)
	for i := range available {
		if available[i].QueueEntryID == queueEntryID {
			continue
		}
		state.Candidates = append(state.Candidates, *candidateView(&available[i]))
	}

	if queue.ActiveMatchID != nil {
		match, err := s.Store.GetMatch(ctx, *queue.ActiveMatchID)
		if err != nil {
			return nil, err
		}
		if match != nil && match.IsOpen() {
			view := &ActiveMatchView{
				MatchID:   match.MatchID,
				Status:    match.Status,
				SessionID: match.SessionID,
				CreatedAt: match.CreatedAt,
			}
			if partnerID := match.PartnerOf(queueEntryID); partnerID != "" {
				partner, err := s.Store.GetQueueEntry(ctx, partnerID)
				if err != nil {
					return nil, err
				}
				view.Partner = candidateView(partner)
			}
			state.ActiveMatch = view
			return state, nil
		}
	}

	if !state.QueueActive {
		return state, nil
	}

	target := GetFocusTarget(available, queueEntryID, now, s.Config)
	state.FocusTarget = candidateView(target)

	selfPress, err := s.latestLivePress(ctx, queueEntryID)
	if err != nil {
		return nil, err
	}
	if selfPress != nil && selfPress.FocusWindowID == state.FocusWindow.ID {
		state.SelfHold = s.holdView(selfPress, now)
	}

	if target != nil {
		reciprocal, err := s.Store.QueryPressEventsByTarget(ctx, queueEntryID,
			[]string{models.PressStatusHolding, models.PressStatusReady})
		if err != nil {
			return nil, err
		}
		var partnerPress *models.PressEvent
		for i := range reciprocal {
			candidate := &reciprocal[i]
			if candidate.QueueEntryID != target.QueueEntryID || candidate.FocusWindowID != state.FocusWindow.ID {
				continue
			}
			if partnerPress == nil || candidate.CreatedAt > partnerPress.CreatedAt {
				partnerPress = candidate
			}
		}
		state.PartnerReciprocalHold = s.holdView(partnerPress, now)
	}

	return state, nil
}
