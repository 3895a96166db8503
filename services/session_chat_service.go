package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"pulse_server/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const maxChatBodyLength = 1000

// SessionChatService relays ephemeral messages inside a match session.
// Messages carry a TTL and are pruned by the sweeper; there is no durable
// chat history.
type SessionChatService struct {
	Store  MatchStore
	Clock  clockwork.Clock
	Config FocusConfig
}

// SendMessageResult is the outcome of SendMessage.
type SendMessageResult struct {
	OK      bool                `json:"ok"`
	Reason  string              `json:"reason,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
}

// SendMessage appends a message to an active session the sender belongs to.
// Duplicate clientMessageIds from retries return the stored message instead
// of appending twice.
func (s *SessionChatService) SendMessage(ctx context.Context, sessionID, senderQueueEntryID, body, clientMessageID string) (*SendMessageResult, error) {
	now := s.Clock.Now().UnixMilli()
	session, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &SendMessageResult{OK: false, Reason: ReasonMissing}, nil
	}
	if !session.Involves(senderQueueEntryID) {
		return &SendMessageResult{OK: false, Reason: ReasonAccessDenied}, nil
	}
	if session.Status != models.SessionStatusActive || now >= session.EndsAt {
		return &SendMessageResult{OK: false, Reason: "session_ended"}, nil
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return &SendMessageResult{OK: false, Reason: "empty_body"}, nil
	}
	if len(body) > maxChatBodyLength {
		cut := maxChatBodyLength
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	if clientMessageID != "" {
		existing, err := s.Store.QueryChatMessagesBySession(ctx, sessionID, 0)
		if err != nil {
			return nil, err
		}
		for i := range existing {
			if existing[i].ClientMessageID == clientMessageID && existing[i].SenderQueueEntryID == senderQueueEntryID {
				return &SendMessageResult{OK: true, Message: &existing[i]}, nil
			}
		}
	}

	message := models.ChatMessage{
		MessageID:          uuid.NewString(),
		SessionID:          sessionID,
		SenderQueueEntryID: senderQueueEntryID,
		Body:               body,
		ClientMessageID:    clientMessageID,
		CreatedAt:          now,
		ExpiresAt:          now + s.Config.ChatMessageTTLMs,
	}
	if err := s.Store.PutChatMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}
	return &SendMessageResult{OK: true, Message: &message}, nil
}

// GetMessages returns the session's messages in send order, newest last.
// Only session participants may read.
func (s *SessionChatService) GetMessages(ctx context.Context, sessionID, requesterQueueEntryID string, limit int) ([]models.ChatMessage, error) {
	session, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.Involves(requesterQueueEntryID) {
		return nil, fmt.Errorf("session not accessible")
	}
	return s.Store.QueryChatMessagesBySession(ctx, sessionID, limit)
}

// PruneExpired deletes messages past their TTL. Called by the sweeper.
func (s *SessionChatService) PruneExpired(ctx context.Context) (int, error) {
	now := s.Clock.Now().UnixMilli()
	expired, err := s.Store.QueryExpiredChatMessages(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.Store.DeleteChatMessages(ctx, expired); err != nil {
		return 0, err
	}
	log.Printf("🧹 Pruned %d expired chat messages", len(expired))
	return len(expired), nil
}
