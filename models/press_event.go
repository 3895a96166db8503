package models

// PressEvent is a single hold gesture. A participant owns at most one
// non-terminal press per focus window; everything in the matcher leans on that.
type PressEvent struct {
	PressEventID       string  `dynamodbav:"pressEventId" json:"pressEventId"`
	QueueEntryID       string  `dynamodbav:"queueEntryId" json:"queueEntryId"`
	ParticipantKey     string  `dynamodbav:"participantKey" json:"participantKey"`
	TargetQueueEntryID *string `dynamodbav:"targetQueueEntryId,omitempty" json:"targetQueueEntryId,omitempty"` // absent for overlap-variant holds
	FocusWindowID      string  `dynamodbav:"focusWindowId,omitempty" json:"focusWindowId,omitempty"`
	PressStartedAt     int64   `dynamodbav:"pressStartedAt" json:"pressStartedAt"`
	PressEndedAt       *int64  `dynamodbav:"pressEndedAt,omitempty" json:"pressEndedAt,omitempty"`
	ReadyAt            *int64  `dynamodbav:"readyAt,omitempty" json:"readyAt,omitempty"`
	DurationMs         *int64  `dynamodbav:"durationMs,omitempty" json:"durationMs,omitempty"`
	Status             string  `dynamodbav:"status" json:"status"`
	MatchID            *string `dynamodbav:"matchId,omitempty" json:"matchId,omitempty"`
	CreatedAt          int64   `dynamodbav:"createdAt" json:"createdAt"`
}

// IsTerminal reports whether the press can no longer change state.
func (p *PressEvent) IsTerminal() bool {
	return p.Status == PressStatusMatched || p.Status == PressStatusExpired || p.Status == PressStatusCancelled
}

// PressEventsTable is the DynamoDB table name for press events
const PressEventsTable = "PulsePressEvents"
