package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	APIURL     string
	APITimeout time.Duration

	TelegramBotToken string
	JWTSecret        string
	SessionTTL       time.Duration
	DevAuth          bool

	BoardSize       int
	TimeControlMS   int64
	DisconnectGrace time.Duration
	TickInterval    time.Duration

	AIMaxConcurrency int
	AITimeout        time.Duration

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		APITimeout:      8 * time.Second,
		SessionTTL:      24 * time.Hour,
		BoardSize:       10,
		TimeControlMS:   600_000,
		DisconnectGrace: 60 * time.Second,
		TickInterval:    time.Second,
		AITimeout:       3 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(os.Getenv("API_URL")), "/")
	if d, ok := duration("API_TIMEOUT"); ok {
		cfg.APITimeout = d
	}

	cfg.TelegramBotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if d, ok := duration("SESSION_TTL"); ok {
		cfg.SessionTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("DEV_AUTH")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DevAuth = b
		}
	}

	if v := strings.TrimSpace(os.Getenv("BOARD_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || (n != 8 && n != 10) {
			return nil, errors.New("BOARD_SIZE must be 8 or 10")
		}
		cfg.BoardSize = n
	}
	if v := strings.TrimSpace(os.Getenv("TIME_CONTROL_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.TimeControlMS = n
		}
	}
	if d, ok := duration("DISCONNECT_GRACE"); ok {
		cfg.DisconnectGrace = d
	}
	if d, ok := duration("TICK_INTERVAL"); ok {
		cfg.TickInterval = d
	}

	if v := strings.TrimSpace(os.Getenv("AI_MAX_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIMaxConcurrency = n
		}
	}
	if d, ok := duration("AI_TIMEOUT"); ok {
		cfg.AITimeout = d
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.TelegramBotToken == "" && !cfg.DevAuth {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required unless DEV_AUTH is set")
	}

	return cfg, nil
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func duration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
