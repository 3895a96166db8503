package models

// Match pairs two queue entries. The id is deterministic per
// (window, unordered pair) so a racing duplicate insert collides instead of
// double-matching. Immutable after creation except for Status/SessionID.
type Match struct {
	MatchID           string  `dynamodbav:"matchId" json:"matchId"`
	UserAQueueEntryID string  `dynamodbav:"userAQueueEntryId" json:"userAQueueEntryId"`
	UserBQueueEntryID string  `dynamodbav:"userBQueueEntryId" json:"userBQueueEntryId"`
	UserAPressEventID string  `dynamodbav:"userAPressEventId" json:"userAPressEventId"`
	UserBPressEventID string  `dynamodbav:"userBPressEventId" json:"userBPressEventId"`
	WindowID          string  `dynamodbav:"windowId" json:"windowId"`
	MatchWindowStart  int64   `dynamodbav:"matchWindowStart" json:"matchWindowStart"`
	MatchWindowEnd    int64   `dynamodbav:"matchWindowEnd" json:"matchWindowEnd"`
	OverlapMs         int64   `dynamodbav:"overlapMs" json:"overlapMs"`
	Status            string  `dynamodbav:"status" json:"status"`
	CreatedAt         int64   `dynamodbav:"createdAt" json:"createdAt"`
	SessionID         *string `dynamodbav:"sessionId,omitempty" json:"sessionId,omitempty"`
}

// IsOpen reports whether the match still binds both participants.
func (m *Match) IsOpen() bool {
	return m.Status == MatchStatusPendingIntro || m.Status == MatchStatusOpen
}

// Involves reports whether the queue entry is one of the match's two sides.
func (m *Match) Involves(queueEntryID string) bool {
	return m.UserAQueueEntryID == queueEntryID || m.UserBQueueEntryID == queueEntryID
}

// PartnerOf returns the other side of the match, or "" for a non-participant.
func (m *Match) PartnerOf(queueEntryID string) string {
	switch queueEntryID {
	case m.UserAQueueEntryID:
		return m.UserBQueueEntryID
	case m.UserBQueueEntryID:
		return m.UserAQueueEntryID
	}
	return ""
}

// MatchesTable is the DynamoDB table name for matches
const MatchesTable = "PulseMatches"
