package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pulse_server/services"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SoulQueueController handles HTTP requests for queue membership
type SoulQueueController struct {
	QueueService *services.SoulQueueService
}

// NewSoulQueueController creates a new SoulQueueController instance
func NewSoulQueueController(queueService *services.SoulQueueService) *SoulQueueController {
	return &SoulQueueController{QueueService: queueService}
}

// Join handles joining (or rejoining) the matching queue
func (qc *SoulQueueController) Join(w http.ResponseWriter, r *http.Request) {
	var req services.JoinQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.AuthUserID == "" && req.ProfileUserID == "" && req.Username == "" {
		http.Error(w, "authUserId, profileUserId or username is required", http.StatusBadRequest)
		return
	}

	result, err := qc.QueueService.JoinQueue(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to join queue: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Heartbeat handles the periodic liveness ping for a queue entry
func (qc *SoulQueueController) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueueEntryID string `json:"queueEntryId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "queueEntryId is required", http.StatusBadRequest)
		return
	}

	result, err := qc.QueueService.Heartbeat(r.Context(), req.QueueEntryID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Heartbeat failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Leave handles leaving the queue
func (qc *SoulQueueController) Leave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueueEntryID string `json:"queueEntryId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "queueEntryId is required", http.StatusBadRequest)
		return
	}

	if err := qc.QueueService.LeaveQueue(r.Context(), req.QueueEntryID); err != nil {
		http.Error(w, fmt.Sprintf("Failed to leave queue: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}

// Snapshot handles fetching the queue snapshot for a participant
func (qc *SoulQueueController) Snapshot(w http.ResponseWriter, r *http.Request) {
	queueEntryID := r.URL.Query().Get("queueEntryId")
	if queueEntryID == "" {
		http.Error(w, "queueEntryId is required", http.StatusBadRequest)
		return
	}

	snapshot, err := qc.QueueService.GetQueueSnapshot(r.Context(), queueEntryID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch queue snapshot: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
