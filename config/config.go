// Package config loads the process configuration from the environment
// and exposes runtime-tunable settings backed by the system_config
// table.
package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/notewire/integrations/models"
)

// Config holds the static process configuration. The two secrets are
// mandatory: without them the state codec and the token cipher cannot
// be constructed.
type Config struct {
	DatabaseDSN   string
	RedisAddr     string
	Addr          string
	AppBaseURL    string
	SigningSecret []byte
	EncryptionKey []byte

	PostHogAPIKey    string
	DisableTelemetry bool
}

// FromEnv reads configuration from the environment, loading a local
// .env file first when present.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseDSN:      os.Getenv("DATABASE_URL"),
		RedisAddr:        getenvDefault("REDIS_ADDR", "localhost:6379"),
		Addr:             getenvDefault("ADDR", ":8080"),
		AppBaseURL:       getenvDefault("APP_BASE_URL", "http://localhost:8080"),
		SigningSecret:    []byte(os.Getenv("STATE_SIGNING_SECRET")),
		EncryptionKey:    []byte(os.Getenv("TOKEN_ENCRYPTION_KEY")),
		PostHogAPIKey:    os.Getenv("POSTHOG_API_KEY"),
		DisableTelemetry: os.Getenv("DISABLE_TELEMETRY") == "1",
	}

	if len(cfg.SigningSecret) == 0 {
		return nil, &models.ConfigurationError{Field: "STATE_SIGNING_SECRET"}
	}

	if len(cfg.EncryptionKey) == 0 {
		return nil, &models.ConfigurationError{Field: "TOKEN_ENCRYPTION_KEY"}
	}

	return &cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
