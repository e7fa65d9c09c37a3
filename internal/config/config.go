package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	AllowAnyOrigin bool

	Persona                 string
	ContextMaxTurns         int
	IdleInterval            time.Duration
	ChatResponseProbability float64
	ExchangeTimeout         time.Duration

	BrainMode        string
	BrainHTTPURL     string
	BrainFallbackURL string
	BrainTimeout     time.Duration

	TTSBaseURL string
	TTSVoice   string
	TTSSpeed   float64

	// AudioSink selects the playback device: "discard", "stdout", or a
	// file path that receives raw PCM.
	AudioSink string

	STTBaseURL string
	STTAPIKey  string
	STTModelID string

	AvatarWSURL     string
	AvatarAuthToken string

	DatabaseURL   string
	MemoryDataDir string

	ExtractionCron          string
	ExtractionTurnThreshold int
	ExtractionCallTimeout   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "airis"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "text"),
		AllowAnyOrigin:   false,
		// Persona text is prepended to every model prompt.
		Persona:                 envOrDefault("APP_PERSONA", "You are Airis, a warm and attentive voice companion."),
		ContextMaxTurns:         200,
		IdleInterval:            0,
		ChatResponseProbability: 0.3,
		ExchangeTimeout:         90 * time.Second,
		BrainMode:               envOrDefault("BRAIN_ADAPTER_MODE", "auto"),
		BrainHTTPURL:            envTrimmed("BRAIN_HTTP_URL"),
		BrainFallbackURL:        envTrimmed("BRAIN_FALLBACK_URL"),
		BrainTimeout:            30 * time.Second,
		TTSBaseURL:              envTrimmed("TTS_BASE_URL"),
		TTSVoice:                envOrDefault("TTS_VOICE", "default"),
		TTSSpeed:                1.0,
		AudioSink:               envOrDefault("APP_AUDIO_SINK", "discard"),
		STTBaseURL:              envTrimmed("STT_BASE_URL"),
		STTAPIKey:               envTrimmed("STT_API_KEY"),
		STTModelID:              envOrDefault("STT_MODEL_ID", "realtime_v1"),
		AvatarWSURL:             envTrimmed("AVATAR_WS_URL"),
		AvatarAuthToken:         envTrimmed("AVATAR_AUTH_TOKEN"),
		DatabaseURL:             envTrimmed("DATABASE_URL"),
		MemoryDataDir:           envTrimmed("MEMORY_DATA_DIR"),
		ExtractionCron:          envOrDefault("EXTRACTION_CRON", "@every 10m"),
		ExtractionTurnThreshold: 20,
		ExtractionCallTimeout:   30 * time.Second,
		ShutdownTimeout:         15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextMaxTurns, err = intFromEnv("APP_CONTEXT_MAX_TURNS", cfg.ContextMaxTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleInterval, err = durationFromEnv("APP_IDLE_INTERVAL", cfg.IdleInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatResponseProbability, err = floatFromEnv("APP_CHAT_RESPONSE_PROBABILITY", cfg.ChatResponseProbability)
	if err != nil {
		return Config{}, err
	}
	cfg.ExchangeTimeout, err = durationFromEnv("APP_EXCHANGE_TIMEOUT", cfg.ExchangeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSpeed, err = floatFromEnv("TTS_SPEED", cfg.TTSSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionTurnThreshold, err = intFromEnv("EXTRACTION_TURN_THRESHOLD", cfg.ExtractionTurnThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionCallTimeout, err = durationFromEnv("EXTRACTION_CALL_TIMEOUT", cfg.ExtractionCallTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.ContextMaxTurns < 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_MAX_TURNS must be >= 0")
	}
	if cfg.ChatResponseProbability < 0 || cfg.ChatResponseProbability > 1 {
		return Config{}, fmt.Errorf("APP_CHAT_RESPONSE_PROBABILITY must be within [0, 1]")
	}
	if cfg.ExchangeTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_EXCHANGE_TIMEOUT must be at least 1s")
	}
	if cfg.TTSSpeed <= 0 {
		return Config{}, fmt.Errorf("TTS_SPEED must be positive")
	}
	if cfg.ExtractionTurnThreshold < 0 {
		return Config{}, fmt.Errorf("EXTRACTION_TURN_THRESHOLD must be >= 0")
	}
	if cfg.ExtractionCallTimeout <= 0 {
		return Config{}, fmt.Errorf("EXTRACTION_CALL_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
