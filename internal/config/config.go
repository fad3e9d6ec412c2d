// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything cmd/api needs to wire the service. Signing-key
// problems are reported here so a misconfigured process dies at startup
// instead of failing per request.
type Config struct {
	Addr           string        `env:"AUTHGATE_ADDR" envDefault:":8080"`
	PGDSN          string        `env:"AUTHGATE_PG_DSN"`
	AuthSecret     string        `env:"AUTHGATE_AUTH_SECRET"`
	Algorithm      string        `env:"AUTHGATE_AUTH_ALGORITHM" envDefault:"HS256"`
	Issuer         string        `env:"AUTHGATE_ISSUER" envDefault:"authgate"`
	AccessTokenTTL time.Duration `env:"AUTHGATE_ACCESS_TOKEN_TTL" envDefault:"30m"`
}

// Load parses the environment and validates cross-field constraints.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Algorithm != "HS256" {
		return Config{}, fmt.Errorf("unsupported signing algorithm %q (only HS256)", cfg.Algorithm)
	}
	if cfg.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("access token ttl must be positive, got %s", cfg.AccessTokenTTL)
	}
	return cfg, nil
}
