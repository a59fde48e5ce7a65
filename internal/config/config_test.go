package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.BoardSize != 10 || cfg.TimeControlMS != 600_000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DisconnectGrace != 60*time.Second || cfg.TickInterval != time.Second {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEV_AUTH", "true")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DISCONNECT_GRACE", "30")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("API_URL", "https://api.example/")
	t.Setenv("BOARD_SIZE", "8")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
	if cfg.DisconnectGrace != 30*time.Second || cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("durations: %v %v", cfg.DisconnectGrace, cfg.TickInterval)
	}
	if cfg.APIURL != "https://api.example" || cfg.BoardSize != 8 {
		t.Fatalf("unexpected: %+v", cfg)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DEV_AUTH", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without bot token")
	}
	t.Setenv("BOARD_SIZE", "9")
	t.Setenv("DEV_AUTH", "1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for board size 9")
	}
}
