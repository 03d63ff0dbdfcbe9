package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestsPerSecond != 3 || cfg.RequestsPerDay != 120000 {
		t.Fatalf("unexpected limiter defaults: %d/%d", cfg.RequestsPerSecond, cfg.RequestsPerDay)
	}
	if cfg.QueueCapacity != 1024 {
		t.Fatalf("queue capacity default: %d", cfg.QueueCapacity)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("request timeout default: %v", cfg.RequestTimeout)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("requestsPerSecond: 5\nqueueCapacity: 16\nclientSecret: file-secret\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REQUESTS_PER_SECOND", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestsPerSecond != 7 {
		t.Fatalf("env should win over file: got %d", cfg.RequestsPerSecond)
	}
	if cfg.QueueCapacity != 16 {
		t.Fatalf("file value lost: got %d", cfg.QueueCapacity)
	}
	if cfg.WebhookSecret != "file-secret" {
		t.Fatalf("webhook secret should default to client secret, got %q", cfg.WebhookSecret)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("REQUESTS_PER_SECOND", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for zero rps")
	}
}
