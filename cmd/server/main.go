package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"urgent-helper/internal/config"
	"urgent-helper/internal/dispatch"
	"urgent-helper/internal/geo"
	"urgent-helper/internal/line"
	"urgent-helper/internal/notify"
	"urgent-helper/internal/store"
)

func main() {
	log.Println("Starting urgent helper server...")

	godotenv.Load()
	cfg := config.Load()

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firestoreClient, err := store.NewFirestoreClient(ctx, cfg.GCPProjectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	geoClient, err := geo.NewLookupClient(cfg.GoogleMapsAPIKey)
	if err != nil {
		log.Fatalf("Failed to create maps client: %v", err)
	}

	notifier, err := notify.NewNotifier(cfg.LineChannelAccessToken)
	if err != nil {
		log.Fatalf("Failed to create LINE notifier: %v", err)
	}

	dispatcher := dispatch.NewDispatcher(geoClient, notifier, firestoreClient, cfg.AlarmSoundURL)

	lineHandler, err := line.NewHandler(cfg.LineChannelAccessToken, cfg.LineChannelSecret)
	if err != nil {
		log.Fatalf("Failed to create LINE handler: %v", err)
	}

	server := setupServer(cfg, dispatcher, lineHandler, firestoreClient)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	waitForShutdown(ctx, server)
}

func setupServer(cfg *config.Config, dispatcher *dispatch.Dispatcher, lineHandler *line.Handler, firestoreClient *store.FirestoreClient) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/webhook", dispatcher.HandleWebhook).Methods("POST")
	r.HandleFunc("/line/callback", lineHandler.HandleWebhook).Methods("POST")

	r.HandleFunc("/internal/dispatches", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token != "Bearer "+cfg.InternalTaskToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		dispatches, err := firestoreClient.RecentDispatches(r.Context(), 20)
		if err != nil {
			log.Printf("Error reading dispatch log: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dispatches); err != nil {
			log.Printf("Error encoding dispatch log: %v", err)
		}
	}).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func validateConfig(cfg *config.Config) error {
	required := map[string]string{
		"LINE_CHANNEL_SECRET":       cfg.LineChannelSecret,
		"LINE_CHANNEL_ACCESS_TOKEN": cfg.LineChannelAccessToken,
		"GOOGLE_MAPS_API_KEY":       cfg.GoogleMapsAPIKey,
		"GCP_PROJECT_ID":            cfg.GCPProjectID,
	}

	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		log.Fatalf("Missing required environment variables: %v", missing)
	}

	return nil
}

func waitForShutdown(ctx context.Context, server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
