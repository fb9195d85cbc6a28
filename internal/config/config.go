package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// DefaultCapacity bounds mailboxes that do not request a capacity.
	DefaultCapacity int `validate:"gt=0"`
	// PublishTimeout bounds how long a publish waits for space in any
	// single subscriber's mailbox.
	PublishTimeout time.Duration `validate:"gt=0"`
	// JournalPath is where the envelope journal is appended. Empty disables
	// the journal.
	JournalPath string
	// BridgeEnabled toggles the Watermill export bridge.
	BridgeEnabled bool
	// GeneratorInterval is the pause between demo task generator emissions.
	GeneratorInterval time.Duration `validate:"gt=0"`
}

// New loads configuration from the environment, falling back to defaults.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := &Config{
		DefaultCapacity:   envInt("COURIER_DEFAULT_CAPACITY", 1000),
		PublishTimeout:    envDuration("COURIER_PUBLISH_TIMEOUT", time.Second),
		JournalPath:       os.Getenv("COURIER_JOURNAL_PATH"),
		BridgeEnabled:     envBool("COURIER_BRIDGE_ENABLED", false),
		GeneratorInterval: envDuration("COURIER_GENERATOR_INTERVAL", time.Second),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
