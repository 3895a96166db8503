package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"pulse_server/services"
)

// S3Controller handles presigned URL requests for avatar and photo objects
type S3Controller struct {
	S3Service *services.S3Service
}

// NewS3Controller creates a new S3Controller instance
func NewS3Controller(s3Service *services.S3Service) *S3Controller {
	return &S3Controller{S3Service: s3Service}
}

// GeneratePresignedURL generates a presigned URL for uploads
func (sc *S3Controller) GeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Kind     string `json:"kind"`
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.FileName == "" || payload.FileType == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	url, key, err := sc.S3Service.GenerateUploadURL(r.Context(), payload.Kind, payload.FileName, payload.FileType)
	if err != nil {
		log.Printf("❌ Failed to generate upload URL: %v", err)
		http.Error(w, "Failed to generate pre-signed URL", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url, "key": key})
}

// GetPresignedReadURL generates a presigned URL for reading objects
func (sc *S3Controller) GetPresignedReadURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Key == "" {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	url, err := sc.S3Service.GenerateReadURL(r.Context(), payload.Key)
	if err != nil {
		log.Printf("❌ Failed to generate read URL: %v", err)
		http.Error(w, "Failed to generate read pre-signed URL", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}
