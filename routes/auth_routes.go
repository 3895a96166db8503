package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterAuthRoutes sets up phone OTP auth routes under /api/auth
func RegisterAuthRoutes(r *mux.Router, authService *services.AuthService) {
	controller := controllers.NewAuthController(authService)

	authRouter := r.PathPrefix("/api/auth").Subrouter()

	authRouter.HandleFunc("/requestCode", controller.RequestCode).Methods("POST")
	authRouter.HandleFunc("/verifyCode", controller.VerifyCode).Methods("POST")
	authRouter.HandleFunc("/refresh", controller.Refresh).Methods("POST")
	authRouter.HandleFunc("/revoke", controller.Revoke).Methods("POST")
}
