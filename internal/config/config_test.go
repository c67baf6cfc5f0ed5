package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %s", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %s", cfg.RefreshTTL)
	}
	if cfg.AccessSecret != "" || cfg.RefreshSecret != "" {
		t.Fatal("secrets must not be defaulted")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VITRINA_LISTEN_ADDR", ":9090")
	t.Setenv("VITRINA_ACCESS_SECRET", "access")
	t.Setenv("VITRINA_REFRESH_SECRET", "refresh")
	t.Setenv("VITRINA_ACCESS_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.AccessSecret != "access" || cfg.RefreshSecret != "refresh" {
		t.Fatal("secrets not picked up from environment")
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %s", cfg.AccessTTL)
	}
}
