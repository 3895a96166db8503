package models

// ChatMessage is an ephemeral in-session message. Rows carry expiresAt and are
// pruned by the sweeper; nothing outlives its session for long.
type ChatMessage struct {
	MessageID          string `dynamodbav:"messageId" json:"messageId"`
	SessionID          string `dynamodbav:"sessionId" json:"sessionId"`
	SenderQueueEntryID string `dynamodbav:"senderQueueEntryId" json:"senderQueueEntryId"`
	Body               string `dynamodbav:"body" json:"body"`
	ClientMessageID    string `dynamodbav:"clientMessageId,omitempty" json:"clientMessageId,omitempty"`
	CreatedAt          int64  `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt          int64  `dynamodbav:"expiresAt" json:"expiresAt"`
}

// ChatMessagesTable is the DynamoDB table name for session chat messages
const ChatMessagesTable = "PulseChatMessages"
