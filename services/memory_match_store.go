package services

import (
	"context"
	"sort"
	"sync"

	"pulse_server/models"
)

// MemoryMatchStore is a MatchStore held in process memory. It backs local mode
// (no AWS credentials) and the service tests. A single mutex serializes every
// access, which gives the store the same isolation the protocol expects from
// DynamoDB's conditional writes.
type MemoryMatchStore struct {
	mu       sync.Mutex
	queue    map[string]models.QueueEntry
	presses  map[string]models.PressEvent
	matches  map[string]models.Match
	sessions map[string]models.MatchSession
	messages map[string]models.ChatMessage
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{
		queue:    make(map[string]models.QueueEntry),
		presses:  make(map[string]models.PressEvent),
		matches:  make(map[string]models.Match),
		sessions: make(map[string]models.MatchSession),
		messages: make(map[string]models.ChatMessage),
	}
}

func (s *MemoryMatchStore) GetQueueEntry(ctx context.Context, queueEntryID string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.queue[queueEntryID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryMatchStore) PutQueueEntry(ctx context.Context, entry models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[entry.QueueEntryID] = entry
	return nil
}

func (s *MemoryMatchStore) QueryQueueEntriesByParticipantKey(ctx context.Context, participantKey string) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.QueueEntry
	for _, entry := range s.queue {
		if entry.ParticipantKey == participantKey {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *MemoryMatchStore) QueryActiveQueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.QueueEntry
	for _, entry := range s.queue {
		if entry.IsActive {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *MemoryMatchStore) GetPressEvent(ctx context.Context, pressEventID string) (*models.PressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	press, ok := s.presses[pressEventID]
	if !ok {
		return nil, nil
	}
	return &press, nil
}

func (s *MemoryMatchStore) PutPressEvent(ctx context.Context, press models.PressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presses[press.PressEventID] = press
	return nil
}

func matchesStatus(status string, statuses []string) bool {
	for _, candidate := range statuses {
		if status == candidate {
			return true
		}
	}
	return false
}

func (s *MemoryMatchStore) QueryPressEventsByQueueEntry(ctx context.Context, queueEntryID string, statuses []string) ([]models.PressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var presses []models.PressEvent
	for _, press := range s.presses {
		if press.QueueEntryID == queueEntryID && matchesStatus(press.Status, statuses) {
			presses = append(presses, press)
		}
	}
	return presses, nil
}

func (s *MemoryMatchStore) QueryPressEventsByTarget(ctx context.Context, targetQueueEntryID string, statuses []string) ([]models.PressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var presses []models.PressEvent
	for _, press := range s.presses {
		if press.TargetQueueEntryID != nil && *press.TargetQueueEntryID == targetQueueEntryID && matchesStatus(press.Status, statuses) {
			presses = append(presses, press)
		}
	}
	return presses, nil
}

func (s *MemoryMatchStore) QueryPressEventsByStatus(ctx context.Context, status string) ([]models.PressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var presses []models.PressEvent
	for _, press := range s.presses {
		if press.Status == status {
			presses = append(presses, press)
		}
	}
	return presses, nil
}

func (s *MemoryMatchStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return nil, nil
	}
	return &match, nil
}

func (s *MemoryMatchStore) CreateMatch(ctx context.Context, match models.Match) (*models.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.matches[match.MatchID]; ok {
		return &existing, false, nil
	}
	s.matches[match.MatchID] = match
	return &match, true, nil
}

func (s *MemoryMatchStore) PutMatch(ctx context.Context, match models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[match.MatchID] = match
	return nil
}

func (s *MemoryMatchStore) GetSession(ctx context.Context, sessionID string) (*models.MatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *MemoryMatchStore) GetSessionByMatch(ctx context.Context, matchID string) (*models.MatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.MatchID == matchID {
			found := session
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryMatchStore) PutSession(ctx context.Context, session models.MatchSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *MemoryMatchStore) QuerySessionsEndingBefore(ctx context.Context, cutoff int64) ([]models.MatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sessions []models.MatchSession
	for _, session := range s.sessions {
		if session.EndsAt <= cutoff {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *MemoryMatchStore) PutChatMessage(ctx context.Context, message models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.MessageID] = message
	return nil
}

func (s *MemoryMatchStore) QueryChatMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []models.ChatMessage
	for _, message := range s.messages {
		if message.SessionID == sessionID {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt < messages[j].CreatedAt })
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *MemoryMatchStore) QueryExpiredChatMessages(ctx context.Context, cutoff int64) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []models.ChatMessage
	for _, message := range s.messages {
		if message.ExpiresAt <= cutoff {
			messages = append(messages, message)
		}
	}
	return messages, nil
}

func (s *MemoryMatchStore) DeleteChatMessages(ctx context.Context, messages []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, message := range messages {
		delete(s.messages, message.MessageID)
	}
	return nil
}
