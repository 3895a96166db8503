package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterOverlapRoutes sets up the overlap matching routes under /api/overlap
func RegisterOverlapRoutes(r *mux.Router, matchService *services.OverlapMatchService) {
	controller := controllers.NewOverlapMatchController(matchService)

	overlapRouter := r.PathPrefix("/api/overlap").Subrouter()

	overlapRouter.HandleFunc("/hold/start", controller.HoldStart).Methods("POST")
	overlapRouter.HandleFunc("/hold/end", controller.HoldEnd).Methods("POST")
	overlapRouter.HandleFunc("/hold/cancel", controller.HoldCancel).Methods("POST")
}
