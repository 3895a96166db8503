package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterSoulRoutes sets up the reciprocal matching routes under /api/soul
func RegisterSoulRoutes(r *mux.Router, queueService *services.SoulQueueService, matchService *services.SoulMatchService) {
	queueController := controllers.NewSoulQueueController(queueService)
	matchController := controllers.NewSoulMatchController(matchService)

	soulRouter := r.PathPrefix("/api/soul").Subrouter()

	soulRouter.HandleFunc("/queue/join", queueController.Join).Methods("POST")
	soulRouter.HandleFunc("/queue/heartbeat", queueController.Heartbeat).Methods("POST")
	soulRouter.HandleFunc("/queue/leave", queueController.Leave).Methods("POST")
	soulRouter.HandleFunc("/queue/snapshot", queueController.Snapshot).Methods("GET")

	soulRouter.HandleFunc("/press/start", matchController.PressStart).Methods("POST")
	soulRouter.HandleFunc("/press/commit", matchController.PressCommit).Methods("POST")
	soulRouter.HandleFunc("/press/cancel", matchController.PressCancel).Methods("POST")
	soulRouter.HandleFunc("/match/close", matchController.CloseMatch).Methods("POST")
	soulRouter.HandleFunc("/state", matchController.ClientState).Methods("GET")
}
