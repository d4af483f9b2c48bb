package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/knowsy.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// RedisURL enables the cross-instance change feed. Empty keeps the feed
	// in-process.
	RedisURL string `env:"REDIS_URL"`

	TransitionCooldown time.Duration `env:"TRANSITION_COOLDOWN" envDefault:"1s"`
	PollInterval       time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	SelectionTimeout   time.Duration `env:"SELECTION_TIMEOUT" envDefault:"150s"`
	GuessTimeout       time.Duration `env:"GUESS_TIMEOUT" envDefault:"150s"`
	DisconnectGrace    time.Duration `env:"DISCONNECT_GRACE" envDefault:"2m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	MaxPlayers         int           `env:"MAX_PLAYERS" envDefault:"12"`

	InferenceURL string  `env:"INFERENCE_URL"`
	InferenceRPS float64 `env:"INFERENCE_RPS" envDefault:"2"`
	FunctionsKey string  `env:"FUNCTIONS_KEY"`
	SeedCatalog  bool    `env:"SEED_CATALOG" envDefault:"true"`

	// SPADir serves a built web client when set.
	SPADir string `env:"SPA_DIR"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.MaxPlayers < 2 {
		return nil, fmt.Errorf("MAX_PLAYERS must be at least 2, got %d", cfg.MaxPlayers)
	}
	return &cfg, nil
}
