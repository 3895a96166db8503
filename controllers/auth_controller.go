package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pulse_server/services"
)

// AuthController handles HTTP requests for phone OTP authentication
type AuthController struct {
	AuthService *services.AuthService
}

// NewAuthController creates a new AuthController instance
func NewAuthController(authService *services.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

type requestCodeRequest struct {
	PhoneE164 string `json:"phoneE164" validate:"required,max=16"`
	DeviceID  string `json:"deviceId" validate:"omitempty,max=128"`
}

type verifyCodeRequest struct {
	ChallengeID string `json:"challengeId" validate:"required"`
	PhoneE164   string `json:"phoneE164" validate:"required,max=16"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	DeviceID    string `json:"deviceId" validate:"omitempty,max=128"`
}

type refreshRequest struct {
	SessionID    string `json:"sessionId" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RequestCode handles starting an OTP challenge
func (ac *AuthController) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := ac.AuthService.RequestCode(r.Context(), req.PhoneE164, req.DeviceID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to request code: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// VerifyCode handles checking a submitted OTP
func (ac *AuthController) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := ac.AuthService.VerifyCode(r.Context(), req.ChallengeID, req.PhoneE164, req.Code, req.DeviceID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to verify code: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Refresh handles exchanging a refresh token for a new token pair
func (ac *AuthController) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := ac.AuthService.Refresh(r.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to refresh session: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Revoke handles logging a device session out
func (ac *AuthController) Revoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	if err := ac.AuthService.Revoke(r.Context(), req.SessionID); err != nil {
		http.Error(w, fmt.Sprintf("Failed to revoke session: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}
