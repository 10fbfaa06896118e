package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8090" {
		t.Errorf("expected default port 8090, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.Fetcher.CacheTTL != 24*time.Hour {
		t.Errorf("expected default cache TTL 24h, got %v", cfg.Fetcher.CacheTTL)
	}
	if cfg.Fetcher.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Sandbox.ExecTimeout != 5*time.Second {
		t.Errorf("expected default exec timeout 5s, got %v", cfg.Sandbox.ExecTimeout)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENV", "production")
	t.Setenv("FETCH_WORKERS", "16")
	t.Setenv("FETCH_CACHE_TTL", "1h")
	t.Setenv("ENGINE_TOP_N", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("expected env production, got %s", cfg.Env)
	}
	if cfg.Fetcher.Workers != 16 {
		t.Errorf("expected 16 workers, got %d", cfg.Fetcher.Workers)
	}
	if cfg.Fetcher.CacheTTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Fetcher.CacheTTL)
	}
	if cfg.Engine.TopN != 50 {
		t.Errorf("expected topN 50, got %d", cfg.Engine.TopN)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENV", "quality-assurance")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid ENV, got nil")
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("FETCH_WORKERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetcher.Workers != 8 {
		t.Errorf("expected fallback to default 8 workers, got %d", cfg.Fetcher.Workers)
	}
}
