package socket

import (
	"context"
	"log"

	"pulse_server/services"

	socketio "github.com/googollee/go-socket.io"
)

type joinSessionPayload struct {
	SessionID    string `json:"sessionId"`
	QueueEntryID string `json:"queueEntryId"`
}

type sendMessagePayload struct {
	SessionID       string `json:"sessionId"`
	QueueEntryID    string `json:"queueEntryId"`
	Body            string `json:"body"`
	ClientMessageID string `json:"clientMessageId"`
}

type typingPayload struct {
	SessionID    string `json:"sessionId"`
	QueueEntryID string `json:"queueEntryId"`
	Typing       bool   `json:"typing"`
}

// NewSocketServer initializes the Socket.IO server relaying session chat.
// Each match session gets a room; messages are persisted through the chat
// service before broadcasting so the HTTP history endpoint stays consistent.
func NewSocketServer(chatService *services.SessionChatService) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(c socketio.Conn) error {
		log.Println("✅ Socket connected:", c.ID())
		return nil
	})

	server.OnEvent("/", "joinSession", func(c socketio.Conn, payload joinSessionPayload) {
		if payload.SessionID == "" || payload.QueueEntryID == "" {
			log.Println("❌ Invalid joinSession payload")
			return
		}
		session, err := chatService.Store.GetSession(context.Background(), payload.SessionID)
		if err != nil || session == nil || !session.Involves(payload.QueueEntryID) {
			log.Printf("❌ Rejected joinSession for %s on session %s", payload.QueueEntryID, payload.SessionID)
			return
		}
		c.Join(payload.SessionID)
		log.Printf("👥 %s joined session %s", payload.QueueEntryID, payload.SessionID)
	})

	server.OnEvent("/", "sendMessage", func(c socketio.Conn, payload sendMessagePayload) {
		result, err := chatService.SendMessage(context.Background(),
			payload.SessionID, payload.QueueEntryID, payload.Body, payload.ClientMessageID)
		if err != nil {
			log.Printf("❌ Failed to relay message: %v", err)
			return
		}
		if !result.OK {
			c.Emit("messageRejected", map[string]interface{}{
				"reason":          result.Reason,
				"clientMessageId": payload.ClientMessageID,
			})
			return
		}
		server.BroadcastToRoom("/", payload.SessionID, "newMessage", result.Message)
	})

	server.OnEvent("/", "typing", func(c socketio.Conn, payload typingPayload) {
		if payload.SessionID == "" {
			return
		}
		server.BroadcastToRoom("/", payload.SessionID, "typing", map[string]interface{}{
			"queueEntryId": payload.QueueEntryID,
			"typing":       payload.Typing,
		})
	})

	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		log.Println("❌ Socket disconnected:", c.ID(), reason)
	})

	return server
}
