package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the rewards engine service.
type Config struct {
	Port         string
	DatabaseURL  string
	Env          string
	ParamsFile   string
	LogFile      string
	LogMaxSizeMB int
	HTTPTimeout  time.Duration
}

// FromEnv loads configuration from environment variables required by the
// service.
func FromEnv() (*Config, error) {
	port := getEnvDefault("REWARDS_PORT", "8080")

	dbURL := os.Getenv("REWARDS_DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("REWARDS_DB_URL is required")
	}

	timeoutSeconds := parseIntEnv("REWARDS_HTTP_TIMEOUT_SECONDS", 30)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	logMaxSize := parseIntEnv("REWARDS_LOG_MAX_SIZE_MB", 100)
	if logMaxSize <= 0 {
		logMaxSize = 100
	}

	return &Config{
		Port:         normalizePort(port),
		DatabaseURL:  dbURL,
		Env:          strings.TrimSpace(os.Getenv("REWARDS_ENV")),
		ParamsFile:   strings.TrimSpace(os.Getenv("REWARDS_PARAMS_FILE")),
		LogFile:      strings.TrimSpace(os.Getenv("REWARDS_LOG_FILE")),
		LogMaxSizeMB: logMaxSize,
		HTTPTimeout:  time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func normalizePort(port string) string {
	if port == "" {
		return "8080"
	}
	if _, err := strconv.Atoi(port); err == nil {
		return port
	}
	// Allow values like ":8080".
	if len(port) > 0 && port[0] == ':' {
		return port[1:]
	}
	return port
}

func parseIntEnv(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}
