package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"pulse_server/services"

	"github.com/gorilla/mux"
)

// ChatController handles HTTP requests for session chat
type ChatController struct {
	ChatService *services.SessionChatService
}

// NewChatController creates a new ChatController instance
func NewChatController(chatService *services.SessionChatService) *ChatController {
	return &ChatController{ChatService: chatService}
}

type sendMessageRequest struct {
	SessionID          string `json:"sessionId" validate:"required"`
	SenderQueueEntryID string `json:"senderQueueEntryId" validate:"required"`
	Body               string `json:"body" validate:"required"`
	ClientMessageID    string `json:"clientMessageId" validate:"omitempty,max=128"`
}

// SendMessage handles appending a message to a session
func (cc *ChatController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := cc.ChatService.SendMessage(r.Context(), req.SessionID, req.SenderQueueEntryID, req.Body, req.ClientMessageID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to send message: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetMessages handles fetching a session's messages
func (cc *ChatController) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	requester := r.URL.Query().Get("queueEntryId")
	if sessionID == "" || requester == "" {
		http.Error(w, "sessionId and queueEntryId are required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	messages, err := cc.ChatService.GetMessages(r.Context(), sessionID, requester, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch messages: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"messages": messages,
	})
}
