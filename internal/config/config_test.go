package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: "https://gateway.example.com"
  token: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %s", cfg.API.ListenAddr)
	}
	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Errorf("Scheduler.Interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Backoff != 24*time.Hour {
		t.Errorf("Scheduler.Backoff = %s", cfg.Scheduler.Backoff)
	}
	if cfg.Pacing.PerSecond != 1 || cfg.Pacing.Burst != 1 {
		t.Errorf("Pacing defaults = %+v", cfg.Pacing)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
	if cfg.Metrics.ListenAddr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics defaults = %+v", cfg.Metrics)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  listen_addr: ":9000"
gateway:
  base_url: "https://gateway.example.com"
  token: "secret"
scheduler:
  interval: 5m
  backoff: 12h
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.ListenAddr != ":9000" {
		t.Errorf("API.ListenAddr = %s", cfg.API.ListenAddr)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Errorf("Scheduler.Interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Backoff != 12*time.Hour {
		t.Errorf("Scheduler.Backoff = %s", cfg.Scheduler.Backoff)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvironmentOverlay(t *testing.T) {
	t.Setenv("ROLLCALL_GATEWAY_TOKEN", "env-secret")
	t.Setenv("ROLLCALL_API_KEY", "env-key")

	path := writeConfig(t, `
gateway:
  base_url: "https://gateway.example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.Token != "env-secret" {
		t.Errorf("Gateway.Token = %q", cfg.Gateway.Token)
	}
	if cfg.API.APIKey != "env-key" {
		t.Errorf("API.APIKey = %q", cfg.API.APIKey)
	}
}

func TestLoadRequiresGateway(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing gateway settings")
	} else if !strings.Contains(err.Error(), "gateway.base_url") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: "https://gateway.example.com"
  token: "secret"
logging:
  level: loud
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestLoadRejectsInvertedPacing(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: "https://gateway.example.com"
  token: "secret"
pacing:
  min_delay: 5s
  max_delay: 1s
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for max_delay < min_delay")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
