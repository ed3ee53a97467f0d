package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9090
	cfg.Proxy.URL = "http://proxy.local:8181"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", loaded.Server.Port)
	}
	if loaded.Proxy.URL != "http://proxy.local:8181" {
		t.Errorf("unexpected proxy URL: %s", loaded.Proxy.URL)
	}
	// Fields absent from the file keep their defaults.
	if loaded.RateLimit.Burst != 30 {
		t.Errorf("expected default burst 30, got %d", loaded.RateLimit.Burst)
	}
	if loaded.RateLimit.IdleTimeout != 5*time.Minute {
		t.Errorf("expected default idle timeout, got %v", loaded.RateLimit.IdleTimeout)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.CronSecret = "from-file"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	t.Setenv("CRON_SECRET", "from-env")
	t.Setenv("PROXY_API_TOKEN", "tok-env")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if loaded.CronSecret != "from-env" {
		t.Errorf("expected env secret to win, got %q", loaded.CronSecret)
	}
	if loaded.Proxy.Token != "tok-env" {
		t.Errorf("expected env token to win, got %q", loaded.Proxy.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAgentConfigValid(t *testing.T) {
	cfg := DefaultAgentConfig()
	if cfg.Valid() {
		t.Error("expected defaults to be incomplete (no wallet or worker)")
	}
	if cfg.Threads < 1 {
		t.Errorf("expected at least 1 thread, got %d", cfg.Threads)
	}

	cfg.WalletAddress = "44wallet"
	cfg.WorkerID = "rig-01"
	if !cfg.Valid() {
		t.Error("expected config to be valid once wallet and worker are set")
	}
}

func TestAgentConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")

	cfg := DefaultAgentConfig()
	cfg.WalletAddress = "44wallet"
	cfg.WorkerID = "rig-01"
	cfg.ReportInterval = 10 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save agent config: %v", err)
	}

	loaded, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("failed to load agent config: %v", err)
	}
	if loaded.WorkerID != "rig-01" {
		t.Errorf("unexpected worker ID: %s", loaded.WorkerID)
	}
	if loaded.ReportInterval != 10*time.Second {
		t.Errorf("unexpected report interval: %v", loaded.ReportInterval)
	}
}
