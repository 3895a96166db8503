package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pulse_server/services"
)

// OverlapMatchController handles HTTP requests for the overlap hold flow
type OverlapMatchController struct {
	MatchService *services.OverlapMatchService
}

// NewOverlapMatchController creates a new OverlapMatchController instance
func NewOverlapMatchController(matchService *services.OverlapMatchService) *OverlapMatchController {
	return &OverlapMatchController{MatchService: matchService}
}

type holdStartRequest struct {
	QueueEntryID string `json:"queueEntryId" validate:"required"`
}

type holdEndRequest struct {
	QueueEntryID string `json:"queueEntryId" validate:"required"`
	PressEventID string `json:"pressEventId" validate:"required"`
}

// HoldStart handles opening an untargeted hold
func (oc *OverlapMatchController) HoldStart(w http.ResponseWriter, r *http.Request) {
	var req holdStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "queueEntryId is required", http.StatusBadRequest)
		return
	}

	result, err := oc.MatchService.HoldStart(r.Context(), req.QueueEntryID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Hold start failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HoldEnd handles closing a hold and attempting an overlap pairing
func (oc *OverlapMatchController) HoldEnd(w http.ResponseWriter, r *http.Request) {
	var req holdEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := oc.MatchService.HoldEnd(r.Context(), req.QueueEntryID, req.PressEventID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Hold end failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HoldCancel handles retracting a pending hold
func (oc *OverlapMatchController) HoldCancel(w http.ResponseWriter, r *http.Request) {
	var req holdEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := oc.MatchService.HoldCancel(r.Context(), req.QueueEntryID, req.PressEventID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Hold cancel failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
