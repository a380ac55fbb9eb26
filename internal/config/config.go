// Package config loads server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the capflow server settings
type Config struct {
	// ListenAddr is the HTTP listen address
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// DatabaseURL is the Postgres connection string; when empty the server
	// falls back to the in-memory repository (single-process, volatile)
	DatabaseURL string `env:"DATABASE_URL"`

	// AMQPURL enables transition-event publishing when set
	AMQPURL string `env:"AMQP_URL"`

	// EventExchange is the topic exchange transition events go to
	EventExchange string `env:"EVENT_EXCHANGE" envDefault:"capflow.events"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
