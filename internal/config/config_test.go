package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/knowsy/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.TransitionCooldown != time.Second {
		t.Errorf("TransitionCooldown = %v, want 1s", cfg.TransitionCooldown)
	}
	if cfg.SelectionTimeout != 150*time.Second {
		t.Errorf("SelectionTimeout = %v, want 150s", cfg.SelectionTimeout)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("MAX_PLAYERS", "4")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.PollInterval != 750*time.Millisecond {
		t.Errorf("PollInterval = %v, want 750ms", cfg.PollInterval)
	}
	if cfg.MaxPlayers != 4 {
		t.Errorf("MaxPlayers = %d, want 4", cfg.MaxPlayers)
	}
}

func TestLoadRejectsTinyRooms(t *testing.T) {
	t.Setenv("MAX_PLAYERS", "1")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for MAX_PLAYERS=1")
	}
}
