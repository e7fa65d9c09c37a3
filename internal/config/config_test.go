package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "airis" {
		t.Fatalf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
	if cfg.ExchangeTimeout != 90*time.Second {
		t.Fatalf("ExchangeTimeout = %v", cfg.ExchangeTimeout)
	}
	if cfg.ExtractionCron != "@every 10m" {
		t.Fatalf("ExtractionCron = %q", cfg.ExtractionCron)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin should default to false")
	}
}

func TestLoadOverridesAndValidation(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("APP_IDLE_INTERVAL", "45s")
	t.Setenv("APP_CHAT_RESPONSE_PROBABILITY", "0.8")
	t.Setenv("EXTRACTION_TURN_THRESHOLD", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" || cfg.IdleInterval != 45*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ChatResponseProbability != 0.8 || cfg.ExtractionTurnThreshold != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	t.Setenv("APP_CHAT_RESPONSE_PROBABILITY", "1.5")
	if _, err := Load(); err == nil {
		t.Fatalf("out-of-range probability should fail validation")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("APP_EXCHANGE_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("malformed duration should fail")
	}
	t.Setenv("APP_EXCHANGE_TIMEOUT", "")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "maybe")
	if _, err := Load(); err == nil {
		t.Fatalf("malformed bool should fail")
	}
}
