package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"pulse_server/models"
	"pulse_server/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// UserProfileController handles requests related to user profiles
type UserProfileController struct {
	UserProfileService *services.UserProfileService
}

// NewUserProfileController creates a new instance of UserProfileController
func NewUserProfileController(userProfileService *services.UserProfileService) *UserProfileController {
	return &UserProfileController{UserProfileService: userProfileService}
}

// UpsertUserProfile handles creating or updating a profile
func (c *UserProfileController) UpsertUserProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if profile.UserID == "" {
		profile.UserID = uuid.NewString()
	}

	saved, err := c.UserProfileService.UpsertProfile(r.Context(), profile)
	if err != nil {
		log.Printf("Failed to save profile: %v", err)
		http.Error(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Profile saved successfully",
		"profile": saved,
	})
}

// GetUserProfile handles fetching a profile by user id
func (c *UserProfileController) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	profile, err := c.UserProfileService.GetProfile(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch profile", http.StatusInternalServerError)
		return
	}
	if profile == nil {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// DeleteUserProfile handles deleting a profile
func (c *UserProfileController) DeleteUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := c.UserProfileService.DeleteProfile(r.Context(), userID); err != nil {
		http.Error(w, "Failed to delete profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Profile deleted successfully"})
}
