package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes sets up session chat routes under /api/chat
func RegisterChatRoutes(r *mux.Router, chatService *services.SessionChatService) {
	controller := controllers.NewChatController(chatService)

	chatRouter := r.PathPrefix("/api/chat").Subrouter()

	chatRouter.HandleFunc("/messages", controller.SendMessage).Methods("POST")
	chatRouter.HandleFunc("/messages/{sessionId}", controller.GetMessages).Methods("GET")
}
