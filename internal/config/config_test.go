package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHGATE_AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr default: %q", cfg.Addr)
	}
	if cfg.Algorithm != "HS256" || cfg.Issuer != "authgate" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("ttl default: %s", cfg.AccessTokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTHGATE_ADDR", ":9090")
	t.Setenv("AUTHGATE_ACCESS_TOKEN_TTL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnsupportedAlgorithm(t *testing.T) {
	t.Setenv("AUTHGATE_AUTH_ALGORITHM", "RS256")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for RS256")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("AUTHGATE_ACCESS_TOKEN_TTL", "-1m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
