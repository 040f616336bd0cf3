// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Config is the full process configuration, decoded from the environment.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int `env:"PORT,default=3001"`

	// DogAPIBaseURL is the base URL of the upstream image-lookup API.
	DogAPIBaseURL string `env:"DOG_API_BASE_URL,default=https://dog.ceo/api"`

	// WidgetDir, when set, serves widget bundles from this directory with
	// live reload instead of the embedded copies.
	WidgetDir string `env:"WIDGET_DIR"`

	// SessionBackend selects the per-session event log: "memory" or "redis".
	SessionBackend string `env:"SESSION_BACKEND,default=memory"`

	// RedisURL configures the redis backend, e.g. redis://localhost:6379/0.
	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load decodes configuration from the environment and validates
// cross-field constraints.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	switch cfg.SessionBackend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("SESSION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
	return &cfg, nil
}
