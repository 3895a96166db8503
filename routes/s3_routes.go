package routes

import (
	"pulse_server/controllers"
	"pulse_server/services"

	"github.com/gorilla/mux"
)

// RegisterS3Routes sets up presigned URL routes under /api/s3
func RegisterS3Routes(r *mux.Router, s3Service *services.S3Service) {
	controller := controllers.NewS3Controller(s3Service)

	s3Router := r.PathPrefix("/api/s3").Subrouter()

	s3Router.HandleFunc("/uploadUrl", controller.GeneratePresignedURL).Methods("POST")
	s3Router.HandleFunc("/readUrl", controller.GetPresignedReadURL).Methods("POST")
}
