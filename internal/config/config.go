package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

type Config struct {
	DatabasePath         string
	ServerAddr           string
	StravaAccessToken    string
	StravaBaseURL        string
	StravaVerifyToken    string
	StravaWebhookSecret  string
	SyncSchedule         string
	SyncWindowDays       int
	WorkerPollIntervalMS int
	Athlete              zones.Athlete
}

// Load reads an optional .env file, then the environment. Variables already set
// in the environment take precedence over the file.
func Load(path string) (Config, error) {
	cfg := Config{
		ServerAddr:           ":8080",
		StravaBaseURL:        "https://www.strava.com/api/v3",
		SyncSchedule:         "@hourly",
		SyncWindowDays:       14,
		WorkerPollIntervalMS: 2000,
	}

	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg.DatabasePath = getenv("DATABASE_PATH", "dashboard.db")
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.StravaAccessToken = os.Getenv("STRAVA_ACCESS_TOKEN")
	cfg.StravaBaseURL = strings.TrimRight(getenv("STRAVA_BASE_URL", cfg.StravaBaseURL), "/")
	cfg.StravaVerifyToken = os.Getenv("STRAVA_VERIFY_TOKEN")
	cfg.StravaWebhookSecret = os.Getenv("STRAVA_WEBHOOK_SECRET")
	cfg.SyncSchedule = getenv("SYNC_SCHEDULE", cfg.SyncSchedule)

	if v := os.Getenv("SYNC_WINDOW_DAYS"); v != "" {
		if err := parseInt(&cfg.SyncWindowDays, v); err != nil {
			return Config{}, fmt.Errorf("SYNC_WINDOW_DAYS: %w", err)
		}
	}
	if v := os.Getenv("WORKER_POLL_INTERVAL_MS"); v != "" {
		if err := parseInt(&cfg.WorkerPollIntervalMS, v); err != nil {
			return Config{}, fmt.Errorf("WORKER_POLL_INTERVAL_MS: %w", err)
		}
	}

	hr, err := zones.ParseTable(os.Getenv("HR_ZONES"))
	if err != nil {
		return Config{}, fmt.Errorf("HR_ZONES: %w", err)
	}
	power, err := zones.ParseTable(os.Getenv("POWER_ZONES"))
	if err != nil {
		return Config{}, fmt.Errorf("POWER_ZONES: %w", err)
	}
	cfg.Athlete = zones.Athlete{HeartRate: hr, Power: power}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	var parsed int
	_, err := fmt.Sscanf(value, "%d", &parsed)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}
