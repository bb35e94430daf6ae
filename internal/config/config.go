package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	"urgent-helper/internal/security"
)

type Config struct {
	Port                   string
	LineChannelSecret      string
	LineChannelAccessToken string
	GoogleMapsAPIKey       string
	GCPProjectID           string
	AlarmSoundURL          string
	InternalTaskToken      string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Generate internal task token if not provided
	internalTaskToken := os.Getenv("INTERNAL_TASK_TOKEN")
	if internalTaskToken == "" {
		token, err := security.GenerateTaskToken()
		if err != nil {
			log.Printf("Warning: Failed to generate internal task token: %v", err)
			log.Printf("Using fallback token. This is less secure.")
			internalTaskToken = "fallback-token-" + getRandomString(16)
		} else {
			internalTaskToken = token
			log.Printf("Generated internal task token: %s", internalTaskToken)
			log.Printf("Please save this token for the dispatch-log endpoint")
		}
	}

	return &Config{
		Port:                   port,
		LineChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
		LineChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		GoogleMapsAPIKey:       os.Getenv("GOOGLE_MAPS_API_KEY"),
		GCPProjectID:           os.Getenv("GCP_PROJECT_ID"),
		AlarmSoundURL:          getEnvOrDefault("ALARM_SOUND_URL", "https://actions.google.com/sounds/v1/alarms/alarm_clock.ogg"),
		InternalTaskToken:      internalTaskToken,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getRandomString generates a random hex string as fallback
func getRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
