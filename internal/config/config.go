package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string
	Environment string

	// Detection thresholds. Drowsy iff ear < EARThreshold; an alert fires
	// after FrameCheckCount consecutive drowsy frames.
	EARThreshold    float64
	FrameCheckCount int
	AutoStopSeconds int // 0 means no wall-clock cap

	// Landmark collaborator endpoints.
	LandmarkURL        string
	LandmarkHealthAddr string

	// File-backed state.
	SessionLogFile  string
	LiveStatusFile  string
	LiveSessionsDir string
	DetectorBin     string

	// Optional Postgres archive; empty disables it.
	DatabaseURL string
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// LoadConfig reads .env plus the process environment and validates the
// result. Invalid detection settings fail here, before anything runs.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is fine, system environment applies
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8081"),
		CORSOrigins:        getEnv("CORS_ORIGINS", "http://localhost:5000"),
		Environment:        getEnv("ENVIRONMENT", "production"),
		EARThreshold:       getEnvFloat("EAR_THRESHOLD", 0.25),
		FrameCheckCount:    getEnvInt("FRAME_CHECK_COUNT", 20),
		AutoStopSeconds:    getEnvInt("AUTO_STOP_SECONDS", 0),
		LandmarkURL:        getEnv("LANDMARK_URL", "ws://localhost:9000/frames"),
		LandmarkHealthAddr: getEnv("LANDMARK_HEALTH_ADDR", ""),
		SessionLogFile:     getEnv("SESSION_LOG_FILE", "drowsiness_log.json"),
		LiveStatusFile:     getEnv("LIVE_STATUS_FILE", "live_session_status.json"),
		LiveSessionsDir:    getEnv("LIVE_SESSIONS_DIR", "live_sessions"),
		DetectorBin:        getEnv("DETECTOR_BIN", "./detector"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.EARThreshold <= 0 {
		return fmt.Errorf("EAR_THRESHOLD must be positive, got %v", c.EARThreshold)
	}
	if c.FrameCheckCount < 1 {
		return fmt.Errorf("FRAME_CHECK_COUNT must be at least 1, got %d", c.FrameCheckCount)
	}
	if c.AutoStopSeconds < 0 {
		return fmt.Errorf("AUTO_STOP_SECONDS must not be negative, got %d", c.AutoStopSeconds)
	}
	if c.SessionLogFile == "" {
		return fmt.Errorf("SESSION_LOG_FILE must not be empty")
	}
	if c.LiveStatusFile == "" {
		return fmt.Errorf("LIVE_STATUS_FILE must not be empty")
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if floatVal, err := strconv.ParseFloat(v, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
