package models

// MatchSession is the short-lived paired session opened for a match.
type MatchSession struct {
	SessionID         string `dynamodbav:"sessionId" json:"sessionId"`
	MatchID           string `dynamodbav:"matchId" json:"matchId"`
	UserAQueueEntryID string `dynamodbav:"userAQueueEntryId" json:"userAQueueEntryId"`
	UserBQueueEntryID string `dynamodbav:"userBQueueEntryId" json:"userBQueueEntryId"`
	StartedAt         int64  `dynamodbav:"startedAt" json:"startedAt"`
	EndsAt            int64  `dynamodbav:"endsAt" json:"endsAt"`
	Status            string `dynamodbav:"status" json:"status"`
}

// Involves reports whether the queue entry belongs to the session.
func (s *MatchSession) Involves(queueEntryID string) bool {
	return s.UserAQueueEntryID == queueEntryID || s.UserBQueueEntryID == queueEntryID
}

// MatchSessionsTable is the DynamoDB table name for match sessions
const MatchSessionsTable = "PulseSessions"
