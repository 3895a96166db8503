package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pulse_server/services"
)

// SoulMatchController handles HTTP requests for the reciprocal press flow
type SoulMatchController struct {
	MatchService *services.SoulMatchService
}

// NewSoulMatchController creates a new SoulMatchController instance
func NewSoulMatchController(matchService *services.SoulMatchService) *SoulMatchController {
	return &SoulMatchController{MatchService: matchService}
}

type pressStartRequest struct {
	QueueEntryID       string `json:"queueEntryId" validate:"required"`
	TargetQueueEntryID string `json:"targetQueueEntryId" validate:"required"`
	FocusWindowID      string `json:"focusWindowId" validate:"required"`
}

type pressCommitRequest struct {
	QueueEntryID       string `json:"queueEntryId" validate:"required"`
	PressEventID       string `json:"pressEventId" validate:"required"`
	TargetQueueEntryID string `json:"targetQueueEntryId" validate:"required"`
	FocusWindowID      string `json:"focusWindowId" validate:"required"`
}

type pressCancelRequest struct {
	QueueEntryID string `json:"queueEntryId" validate:"required"`
	PressEventID string `json:"pressEventId" validate:"required"`
}

type closeMatchRequest struct {
	QueueEntryID string `json:"queueEntryId" validate:"required"`
	MatchID      string `json:"matchId" validate:"required"`
}

// PressStart handles starting a hold aimed at the current focus target
func (mc *SoulMatchController) PressStart(w http.ResponseWriter, r *http.Request) {
	var req pressStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.PressStart(r.Context(), req.QueueEntryID, req.TargetQueueEntryID, req.FocusWindowID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Press start failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// PressCommit handles committing a hold
func (mc *SoulMatchController) PressCommit(w http.ResponseWriter, r *http.Request) {
	var req pressCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.PressCommit(r.Context(), req.QueueEntryID, req.PressEventID, req.TargetQueueEntryID, req.FocusWindowID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Press commit failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// PressCancel handles retracting a hold
func (mc *SoulMatchController) PressCancel(w http.ResponseWriter, r *http.Request) {
	var req pressCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.PressCancel(r.Context(), req.QueueEntryID, req.PressEventID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Press cancel failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// CloseMatch handles closing an open match
func (mc *SoulMatchController) CloseMatch(w http.ResponseWriter, r *http.Request) {
	var req closeMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.CloseMatch(r.Context(), req.QueueEntryID, req.MatchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Close match failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ClientState handles the aggregate poll read driving the client UI.
// queueEntryId is optional: without one the response carries only the
// current focus window, which is all a client needs before joining.
func (mc *SoulMatchController) ClientState(w http.ResponseWriter, r *http.Request) {
	queueEntryID := r.URL.Query().Get("queueEntryId")

	state, err := mc.MatchService.GetClientState(r.Context(), queueEntryID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch client state: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
