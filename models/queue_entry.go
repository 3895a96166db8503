package models

// QueueEntry is one active participant in the matching queue. All timestamps
// are unix milliseconds so server and clients compute identical focus windows.
type QueueEntry struct {
	QueueEntryID    string  `dynamodbav:"queueEntryId" json:"queueEntryId"`
	ParticipantKey  string  `dynamodbav:"participantKey" json:"participantKey"`
	AuthUserID      string  `dynamodbav:"authUserId,omitempty" json:"authUserId,omitempty"`
	ProfileUserID   string  `dynamodbav:"profileUserId,omitempty" json:"profileUserId,omitempty"`
	Username        string  `dynamodbav:"username,omitempty" json:"username,omitempty"`
	AvatarID        string  `dynamodbav:"avatarId,omitempty" json:"avatarId,omitempty"`
	IsActive        bool    `dynamodbav:"isActive" json:"isActive"`
	QueueStatus     string  `dynamodbav:"queueStatus" json:"queueStatus"`
	ActiveMatchID   *string `dynamodbav:"activeMatchId,omitempty" json:"activeMatchId,omitempty"`
	JoinedAt        int64   `dynamodbav:"joinedAt" json:"joinedAt"`
	LastHeartbeatAt int64   `dynamodbav:"lastHeartbeatAt" json:"lastHeartbeatAt"`
	LastPressAt     *int64  `dynamodbav:"lastPressAt,omitempty" json:"lastPressAt,omitempty"`
}

// QueueTable is the DynamoDB table name for queue entries
const QueueTable = "PulseQueue"
