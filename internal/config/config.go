// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const devSecret = "housemate-dev-secret"

type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	LogFormat      string
	JWTSecret      string
	TokenTTL       time.Duration
	RepairInterval time.Duration
	// Dev relaxes the JWT secret requirement.
	Dev bool
}

// Load reads HOUSEMATE_* variables, after loading a .env file from the
// working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// LoadStorage is Load for commands that only open the database. The JWT
// secret is not required.
func LoadStorage() (*Config, error) {
	_ = godotenv.Load()
	return StorageFromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg, err := StorageFromEnv(getenv)
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		if !cfg.Dev {
			return nil, fmt.Errorf("HOUSEMATE_JWT_SECRET is required")
		}
		cfg.JWTSecret = devSecret
	}
	return cfg, nil
}

// StorageFromEnv is FromEnv without the JWT secret check.
func StorageFromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:      get("HOUSEMATE_PORT", "8080"),
		DBPath:    get("HOUSEMATE_DB_PATH", "housemate.db"),
		LogLevel:  get("HOUSEMATE_LOG_LEVEL", "info"),
		LogFormat: get("HOUSEMATE_LOG_FORMAT", "text"),
		JWTSecret: getenv("HOUSEMATE_JWT_SECRET"),
	}

	var err error
	if cfg.Dev, err = strconv.ParseBool(get("HOUSEMATE_DEV", "false")); err != nil {
		return nil, fmt.Errorf("HOUSEMATE_DEV: %w", err)
	}
	if cfg.TokenTTL, err = time.ParseDuration(get("HOUSEMATE_TOKEN_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("HOUSEMATE_TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("HOUSEMATE_TOKEN_TTL must be positive")
	}
	if cfg.RepairInterval, err = time.ParseDuration(get("HOUSEMATE_REPAIR_INTERVAL", "0")); err != nil {
		return nil, fmt.Errorf("HOUSEMATE_REPAIR_INTERVAL: %w", err)
	}
	return cfg, nil
}
