// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// HTTP listen address
	ListenAddr string

	// Path to the SQLite database file
	DatabasePath string

	// Logging
	LogLevel string

	// Environment: "development" or "production"
	Environment string
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

func load() (*Config, error) {
	// A missing .env file is fine; real deployments set env vars.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:   getEnv("CONTROLCREDI_ADDR", ":8080"),
		DatabasePath: getEnv("CONTROLCREDI_DB", "controlcredi.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Environment:  getEnv("ENVIRONMENT", "development"),
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("CONTROLCREDI_DB must not be empty")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
