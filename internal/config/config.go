// Package config gathers the service settings from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds every runtime knob of the service.
type Settings struct {
	Port string

	GTFSFeedPath     string
	WalkingSpeedKmh  float64
	BikeSpeedKmh     float64
	BikeAccessRadius float64 // metres
	BikeParkingsPath string

	IncidentPollInterval   time.Duration
	IncidentMultipliers    map[string]float64
	IncidentTrustThreshold float64
	IncidentApprovalReward float64
	PostImpactMultiplier   float64
}

// defaultMultipliers is used when INCIDENT_MULTIPLIERS is not set.
func defaultMultipliers() map[string]float64 {
	return map[string]float64{
		"Traffic": 1.5,
		"Crush":   1e13,
	}
}

// Load reads settings from the environment.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env file")
	}

	settings := &Settings{
		Port:                   getEnv("PORT", "8000"),
		GTFSFeedPath:           getEnv("GTFS_FEED_PATH", "gtfs.zip"),
		WalkingSpeedKmh:        getEnvFloat("WALKING_SPEED_KMH", 5.0),
		BikeSpeedKmh:           getEnvFloat("BIKE_SPEED_KMH", 20.0),
		BikeAccessRadius:       getEnvFloat("BIKE_ACCESS_RADIUS_M", 150.0),
		BikeParkingsPath:       getEnv("BIKE_PARKINGS_PATH", ""),
		IncidentTrustThreshold: getEnvFloat("INCIDENT_TRUST_THRESHOLD", 50.0),
		IncidentApprovalReward: getEnvFloat("INCIDENT_APPROVAL_REWARD", 10.0),
		PostImpactMultiplier:   getEnvFloat("POST_IMPACT_MULTIPLIER", 2.0),
	}

	pollSeconds := getEnvFloat("INCIDENT_POLL_INTERVAL_SECONDS", 60.0)
	if pollSeconds <= 0 {
		return nil, fmt.Errorf("INCIDENT_POLL_INTERVAL_SECONDS must be positive, got %v", pollSeconds)
	}
	settings.IncidentPollInterval = time.Duration(pollSeconds * float64(time.Second))

	multipliers := defaultMultipliers()
	if raw := os.Getenv("INCIDENT_MULTIPLIERS"); raw != "" {
		parsed := map[string]float64{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("parsing INCIDENT_MULTIPLIERS: %w", err)
		}
		multipliers = parsed
	}
	for category, multiplier := range multipliers {
		if multiplier < 1 {
			return nil, fmt.Errorf("INCIDENT_MULTIPLIERS[%s] must be >= 1, got %v", category, multiplier)
		}
	}
	settings.IncidentMultipliers = multipliers

	if settings.WalkingSpeedKmh <= 0 || settings.BikeSpeedKmh <= 0 {
		return nil, fmt.Errorf("speeds must be positive (walking=%v, bike=%v)",
			settings.WalkingSpeedKmh, settings.BikeSpeedKmh)
	}

	return settings, nil
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using default %v", key, raw, defaultValue)
		return defaultValue
	}
	return value
}
