package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the client configuration.
type AppConfig struct {
	// BaseURL is the REST endpoint of the DevLink backend.
	BaseURL string
	// SocketURL is the websocket endpoint used for presence and live push.
	SocketURL string
	// CredentialsFile is where the persisted session (token + identity
	// snapshot) lives between runs.
	CredentialsFile string

	RequestTimeout time.Duration

	// Reconnect tuning for the socket manager.
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	ReconnectMaxRetries int
}

// LoadConfig loads configuration from environment variables, optionally
// seeded from a .env file. A missing .env is not fatal so the client can run
// with plain environment variables.
func LoadConfig(envPath ...string) *AppConfig {
	envFile := ".env"
	if len(envPath) > 0 {
		envFile = envPath[0]
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: Could not load %s file: %v. Relying on environment variables.", envFile, err)
	}

	cfg := &AppConfig{
		BaseURL:             getEnv("DEVLINK_API_URL", "http://localhost:3003"),
		SocketURL:           getEnv("DEVLINK_SOCKET_URL", "ws://localhost:3003/socket"),
		CredentialsFile:     getEnv("DEVLINK_CREDENTIALS_FILE", defaultCredentialsFile()),
		RequestTimeout:      getEnvDuration("DEVLINK_REQUEST_TIMEOUT_SECONDS", 80),
		ReconnectBaseDelay:  time.Duration(getEnvInt("DEVLINK_RECONNECT_BASE_MS", 500)) * time.Millisecond,
		ReconnectMaxDelay:   time.Duration(getEnvInt("DEVLINK_RECONNECT_MAX_MS", 30000)) * time.Millisecond,
		ReconnectMaxRetries: getEnvInt("DEVLINK_RECONNECT_MAX_RETRIES", 6),
	}

	log.Printf("Configuration loaded: API=%s, Socket=%s, Timeout=%v", cfg.BaseURL, cfg.SocketURL, cfg.RequestTimeout)
	return cfg
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".devlink-credentials.json"
	}
	return filepath.Join(dir, "devlink", "credentials.json")
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: Invalid %s value '%s', using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}
