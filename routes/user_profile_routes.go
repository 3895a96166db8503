package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterUserProfileRoutes sets up profile routes under /api/profiles
func RegisterUserProfileRoutes(r *mux.Router, userProfileService *services.UserProfileService) {
	controller := controllers.NewUserProfileController(userProfileService)

	profileRouter := r.PathPrefix("/api/profiles").Subrouter()

	profileRouter.HandleFunc("", controller.UpsertUserProfile).Methods("POST")
	profileRouter.HandleFunc("/{userId}", controller.GetUserProfile).Methods("GET")
	profileRouter.HandleFunc("/{userId}", controller.DeleteUserProfile).Methods("DELETE")
}
