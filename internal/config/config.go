// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"APP_ENV" default:"development"`

	// AI completion side-channel. An empty URL disables /api/chat; rooms are
	// unaffected.
	AIProviderURL string        `envconfig:"AI_PROVIDER_URL"`
	AIProviderKey string        `envconfig:"AI_PROVIDER_KEY"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`

	// Rooms empty for longer than RoomIdleTTL are evicted by a sweep that
	// runs on RoomSweepSpec (a cron spec).
	RoomIdleTTL   time.Duration `envconfig:"ROOM_IDLE_TTL" default:"10m"`
	RoomSweepSpec string        `envconfig:"ROOM_SWEEP_SPEC" default:"@every 1m"`

	// Per-connection inbound frame throttling.
	RateLimitBurst  int32         `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RateLimitRefill time.Duration `envconfig:"RATE_LIMIT_REFILL" default:"500ms"`
}

// Load reads .env if present, then the process environment, and logs the
// effective settings.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] No .env file found, relying on system environment variables")
	} else {
		log.Println("[CONFIG] Loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	log.Printf("[CONFIG] Environment: %s", cfg.Env)
	log.Printf("[CONFIG] Target Port: %s", cfg.Port)
	log.Printf("[CONFIG] Room idle TTL: %s (sweep %q)", cfg.RoomIdleTTL, cfg.RoomSweepSpec)

	if cfg.AIProviderURL == "" {
		log.Println("[CONFIG] AI_PROVIDER_URL not set; /api/chat will be disabled")
	} else {
		log.Printf("[CONFIG] AI provider: %s", cfg.AIProviderURL)
	}

	return &cfg, nil
}
