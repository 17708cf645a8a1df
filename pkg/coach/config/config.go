// Package config loads runtime configuration from the environment and
// activity plans from YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TransportKind selects how the engine reaches the agent.
type TransportKind string

const (
	TransportGemini TransportKind = "gemini"
	TransportRelay  TransportKind = "relay"
)

// Config is the full runtime configuration of the coaching engine.
type Config struct {
	Transport TransportKind

	GeminiAPIKey string
	GeminiModel  string
	RelayURL     string
	RelayToken   string
	Voice        string

	PostgresDSN string
	SQLitePath  string

	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int

	KeepaliveInterval time.Duration
	QuietThreshold    time.Duration

	ProseCueGap time.Duration
	CountCueGap time.Duration

	ResumptionTTL time.Duration

	LogLevel string
}

// Load reads configuration from CADENCE_* environment variables, applying
// defaults and validating the result.
func Load() (Config, error) {
	cfg := Config{
		Transport:            TransportKind(envOr("CADENCE_TRANSPORT", string(TransportGemini))),
		GeminiAPIKey:         envOr("CADENCE_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
		GeminiModel:          envOr("CADENCE_GEMINI_MODEL", ""),
		RelayURL:             envOr("CADENCE_RELAY_URL", ""),
		RelayToken:           envOr("CADENCE_RELAY_TOKEN", ""),
		Voice:                envOr("CADENCE_VOICE", ""),
		PostgresDSN:          envOr("CADENCE_POSTGRES_DSN", ""),
		SQLitePath:           envOr("CADENCE_SQLITE_PATH", "data/cadence.db"),
		BackoffBase:          envDurationOr("CADENCE_BACKOFF_BASE", time.Second),
		BackoffCap:           envDurationOr("CADENCE_BACKOFF_CAP", 5*time.Second),
		MaxReconnectAttempts: envIntOr("CADENCE_MAX_RECONNECT_ATTEMPTS", 3),
		KeepaliveInterval:    envDurationOr("CADENCE_KEEPALIVE_INTERVAL", 25*time.Second),
		QuietThreshold:       envDurationOr("CADENCE_QUIET_THRESHOLD", 20*time.Second),
		ProseCueGap:          envDurationOr("CADENCE_PROSE_CUE_GAP", 350*time.Millisecond),
		CountCueGap:          envDurationOr("CADENCE_COUNT_CUE_GAP", 900*time.Millisecond),
		ResumptionTTL:        envDurationOr("CADENCE_RESUMPTION_TTL", time.Hour),
		LogLevel:             envOr("CADENCE_LOG_LEVEL", "info"),
	}

	switch cfg.Transport {
	case TransportGemini, TransportRelay:
	default:
		return Config{}, fmt.Errorf("CADENCE_TRANSPORT must be one of gemini|relay")
	}
	if cfg.Transport == TransportGemini && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("CADENCE_GEMINI_API_KEY must be set when CADENCE_TRANSPORT=gemini")
	}
	if cfg.Transport == TransportRelay && cfg.RelayURL == "" {
		return Config{}, fmt.Errorf("CADENCE_RELAY_URL must be set when CADENCE_TRANSPORT=relay")
	}
	if cfg.BackoffBase <= 0 {
		return Config{}, fmt.Errorf("CADENCE_BACKOFF_BASE must be > 0")
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		return Config{}, fmt.Errorf("CADENCE_BACKOFF_CAP must be >= CADENCE_BACKOFF_BASE")
	}
	if cfg.MaxReconnectAttempts <= 0 {
		return Config{}, fmt.Errorf("CADENCE_MAX_RECONNECT_ATTEMPTS must be > 0")
	}
	if cfg.KeepaliveInterval <= 0 {
		return Config{}, fmt.Errorf("CADENCE_KEEPALIVE_INTERVAL must be > 0")
	}
	if cfg.QuietThreshold <= 0 || cfg.QuietThreshold > cfg.KeepaliveInterval {
		return Config{}, fmt.Errorf("CADENCE_QUIET_THRESHOLD must be > 0 and <= CADENCE_KEEPALIVE_INTERVAL")
	}
	if cfg.ProseCueGap < 0 || cfg.CountCueGap < 0 {
		return Config{}, fmt.Errorf("cue gaps must be >= 0")
	}
	if cfg.ResumptionTTL <= 0 {
		return Config{}, fmt.Errorf("CADENCE_RESUMPTION_TTL must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
