package services

import (
	"context"
	"log"

	"pulse_server/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MatchSessionService opens a timed session for each match and tears sessions
// down when their timer runs out or the match is closed early.
type MatchSessionService struct {
	Store  MatchStore
	Clock  clockwork.Clock
	Config FocusConfig
}

// OpenForMatch creates the session for a freshly created match. The session
// clock starts after the intro beat so both clients see the reveal first.
func (s *MatchSessionService) OpenForMatch(ctx context.Context, match *models.Match) (*models.MatchSession, error) {
	now := s.Clock.Now().UnixMilli()
	startedAt := now + s.Config.IntroDurationMs
	session := models.MatchSession{
		SessionID:         uuid.NewString(),
		MatchID:           match.MatchID,
		UserAQueueEntryID: match.UserAQueueEntryID,
		UserBQueueEntryID: match.UserBQueueEntryID,
		StartedAt:         startedAt,
		EndsAt:            startedAt + s.Config.SessionDurationMs,
		Status:            models.SessionStatusActive,
	}
	if err := s.Store.PutSession(ctx, session); err != nil {
		return nil, err
	}
	log.Printf("⏱️ Session %s opened for match %s", session.SessionID, match.MatchID)
	return &session, nil
}

// GetByMatch returns the session for a match, nil when none exists.
func (s *MatchSessionService) GetByMatch(ctx context.Context, matchID string) (*models.MatchSession, error) {
	return s.Store.GetSessionByMatch(ctx, matchID)
}

// EndForMatch marks the match's session ended. No-op when the match never
// got a session or it already ended.
func (s *MatchSessionService) EndForMatch(ctx context.Context, matchID string) error {
	session, err := s.Store.GetSessionByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if session == nil || session.Status == models.SessionStatusEnded {
		return nil
	}
	session.Status = models.SessionStatusEnded
	return s.Store.PutSession(ctx, *session)
}

// EndExpired closes every session whose timer has run out, ends the owning
// match, and returns both participants to the queue. Called by the sweeper.
func (s *MatchSessionService) EndExpired(ctx context.Context) (int, error) {
	now := s.Clock.Now().UnixMilli()
	expired, err := s.Store.QuerySessionsEndingBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, session := range expired {
		if session.Status != models.SessionStatusActive {
			continue
		}
		session.Status = models.SessionStatusEnded
		if err := s.Store.PutSession(ctx, session); err != nil {
			return ended, err
		}
		ended++

		match, err := s.Store.GetMatch(ctx, session.MatchID)
		if err != nil {
			return ended, err
		}
		if match != nil && match.IsOpen() {
			match.Status = models.MatchStatusEnded
			if err := s.Store.PutMatch(ctx, *match); err != nil {
				return ended, err
			}
		}

		for _, participantID := range []string{session.UserAQueueEntryID, session.UserBQueueEntryID} {
			entry, err := s.Store.GetQueueEntry(ctx, participantID)
			if err != nil {
				return ended, err
			}
			if entry == nil {
				continue
			}
			if entry.ActiveMatchID != nil && *entry.ActiveMatchID == session.MatchID {
				entry.ActiveMatchID = nil
				if entry.IsActive {
					entry.QueueStatus = models.QueueStatusQueued
				}
				if err := s.Store.PutQueueEntry(ctx, *entry); err != nil {
					return ended, err
				}
			}
		}
	}
	if ended > 0 {
		log.Printf("🧹 Ended %d expired sessions", ended)
	}
	return ended, nil
}
