package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the API binary reads from the environment.
// The signing secrets are deliberately not defaulted: an endpoint that
// issues or verifies tokens must refuse to start without them.
type Config struct {
	ListenAddr string `env:"VITRINA_LISTEN_ADDR" envDefault:":8080"`
	PGDSN      string `env:"VITRINA_PG_DSN"`

	AccessSecret  string `env:"VITRINA_ACCESS_SECRET"`
	RefreshSecret string `env:"VITRINA_REFRESH_SECRET"`

	AccessTTL  time.Duration `env:"VITRINA_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"VITRINA_REFRESH_TTL" envDefault:"168h"`

	RateBurst  int `env:"VITRINA_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"VITRINA_RATE_PER_SEC" envDefault:"10"`

	MaxBodyBytes int64 `env:"VITRINA_MAX_BODY_BYTES" envDefault:"65536"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
