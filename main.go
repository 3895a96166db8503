package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse_server/routes"
	"pulse_server/services"
	"pulse_server/socket"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	clock := clockwork.NewRealClock()
	config := services.DefaultFocusConfig

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Local mode runs the match domain against the in-memory store so the
	// queue/press/match flow works without any AWS tables.
	var store services.MatchStore
	if os.Getenv("APP_ENV") == "local" {
		log.Println("APP_ENV=local: using in-memory match store")
		store = services.NewMemoryMatchStore()
	} else {
		store = services.NewDynamoMatchStore(dynamoService)
	}

	// Initialize Services
	sessionService := &services.MatchSessionService{Store: store, Clock: clock, Config: config}
	queueService := &services.SoulQueueService{Store: store, Clock: clock, Config: config}
	matchService := &services.SoulMatchService{Store: store, Clock: clock, Config: config, Sessions: sessionService}
	overlapService := &services.OverlapMatchService{Store: store, Clock: clock, Config: config, Sessions: sessionService}
	chatService := &services.SessionChatService{Store: store, Clock: clock, Config: config}
	userProfileService := &services.UserProfileService{Dynamo: dynamoService, Clock: clock}
	authService := &services.AuthService{
		Dynamo:    dynamoService,
		Clock:     clock,
		JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		OtpPepper: os.Getenv("OTP_PEPPER"),
	}
	s3Service, err := services.NewS3Service(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to Pulse")
	}).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}).Methods("GET")

	// Register routes
	routes.RegisterSoulRoutes(r, queueService, matchService)
	routes.RegisterOverlapRoutes(r, overlapService)
	routes.RegisterChatRoutes(r, chatService)
	routes.RegisterAuthRoutes(r, authService)
	routes.RegisterUserProfileRoutes(r, userProfileService)
	routes.RegisterS3Routes(r, s3Service)

	// Socket.IO server for session chat rooms
	socketServer := socket.NewSocketServer(chatService)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Printf("❌ Socket server error: %v", err)
		}
	}()
	defer socketServer.Close()
	r.Handle("/socket.io/", socketServer)

	// Background sweeper
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper := &services.Sweeper{
		Queue:    queueService,
		Sessions: sessionService,
		Chat:     chatService,
		Clock:    clock,
	}
	go sweeper.Run(sweepCtx)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: corsHandler,
	}

	go func() {
		log.Printf("Starting server on port %s...\n", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Shutdown error: %v", err)
	}
	log.Println("Server stopped.")
}
