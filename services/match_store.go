package services

import (
	"context"

	"pulse_server/models"
)

// MatchStore is the repository the matching protocol runs against. Every
// operation reads current queue/press/match state through it, decides, and
// writes back; implementations must make CreateMatch exactly-once per match id
// so two racing commits cannot both insert.
type MatchStore interface {
	// Queue entries
	GetQueueEntry(ctx context.Context, queueEntryID string) (*models.QueueEntry, error)
	PutQueueEntry(ctx context.Context, entry models.QueueEntry) error
	QueryQueueEntriesByParticipantKey(ctx context.Context, participantKey string) ([]models.QueueEntry, error)
	QueryActiveQueueEntries(ctx context.Context) ([]models.QueueEntry, error)

	// Press events
	GetPressEvent(ctx context.Context, pressEventID string) (*models.PressEvent, error)
	PutPressEvent(ctx context.Context, press models.PressEvent) error
	QueryPressEventsByQueueEntry(ctx context.Context, queueEntryID string, statuses []string) ([]models.PressEvent, error)
	QueryPressEventsByTarget(ctx context.Context, targetQueueEntryID string, statuses []string) ([]models.PressEvent, error)
	QueryPressEventsByStatus(ctx context.Context, status string) ([]models.PressEvent, error)

	// Matches
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	// CreateMatch inserts the match unless a row with the same id already
	// exists; it returns the row that ended up in the store and whether this
	// call created it.
	CreateMatch(ctx context.Context, match models.Match) (*models.Match, bool, error)
	PutMatch(ctx context.Context, match models.Match) error

	// Sessions
	GetSession(ctx context.Context, sessionID string) (*models.MatchSession, error)
	GetSessionByMatch(ctx context.Context, matchID string) (*models.MatchSession, error)
	PutSession(ctx context.Context, session models.MatchSession) error
	QuerySessionsEndingBefore(ctx context.Context, cutoff int64) ([]models.MatchSession, error)

	// Session chat
	PutChatMessage(ctx context.Context, message models.ChatMessage) error
	QueryChatMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	QueryExpiredChatMessages(ctx context.Context, cutoff int64) ([]models.ChatMessage, error)
	DeleteChatMessages(ctx context.Context, messages []models.ChatMessage) error
}

// latestPress returns the most recently created press of a slice, or nil.
func latestPress(presses []models.PressEvent) *models.PressEvent {
	var latest *models.PressEvent
	for i := range presses {
		if latest == nil || presses[i].CreatedAt > latest.CreatedAt {
			latest = &presses[i]
		}
	}
	return latest
}
