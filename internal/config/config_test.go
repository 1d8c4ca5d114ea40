package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DatabasePath == "" {
		t.Error("DatabasePath should not be empty")
	}

	if cfg.API.Port <= 0 {
		t.Error("API port should be positive")
	}

	if cfg.Keystore.RotationInterval != 30 {
		t.Errorf("Expected rotation interval 30, got %d", cfg.Keystore.RotationInterval)
	}

	if cfg.Telemetry.Enabled {
		t.Error("Telemetry should be disabled by default")
	}

	if cfg.Gate.Enabled {
		t.Error("Biometric gate should be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()

	// Valid config should pass
	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not return error: %v", err)
	}

	// Invalid keystore provider should fail
	cfg.Keystore.Provider = "invalid"
	if err := cfg.Validate(); err == nil {
		t.Error("Invalid keystore provider should return error")
	}
	cfg.Keystore.Provider = "file"

	// Empty app salt should fail
	cfg.Keystore.AppSalt = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty app salt should return error")
	}
	cfg.Keystore.AppSalt = "salt"

	// Static prober without a fixture should fail
	cfg.Capability.Prober = "static"
	cfg.Capability.FixturePath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Static prober without fixture path should return error")
	}
	cfg.Capability.Prober = "ffmpeg"

	// Enabled telemetry without a redis address should fail
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Enabled telemetry without redis address should return error")
	}
	cfg.Telemetry.RedisAddr = "localhost:6379"

	// Invalid log level should fail
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("Invalid log level should return error")
	}
}

func TestRotationIntervalDuration(t *testing.T) {
	k := KeystoreConfig{RotationInterval: 30}
	if k.RotationIntervalDuration() != 30*24*time.Hour {
		t.Errorf("Expected 720h rotation interval, got %s", k.RotationIntervalDuration())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server_url: "https://jellyfin.home.lan"
database_path: "/tmp/bridge-test.db"
log_level: "debug"
keystore:
  provider: "memory"
  app_salt: "test-salt"
  rotation_interval: 7
capability:
  prober: "ffmpeg"
gate:
  enabled: true
  provider: "simulator"
  timeout: 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not return error: %v", err)
	}

	if cfg.ServerURL != "https://jellyfin.home.lan" {
		t.Errorf("Expected server URL from file, got '%s'", cfg.ServerURL)
	}

	if cfg.Keystore.Provider != "memory" {
		t.Errorf("Expected keystore provider 'memory', got '%s'", cfg.Keystore.Provider)
	}

	if cfg.Keystore.RotationInterval != 7 {
		t.Errorf("Expected rotation interval 7, got %d", cfg.Keystore.RotationInterval)
	}

	if !cfg.Gate.Enabled || cfg.Gate.Provider != "simulator" {
		t.Error("Gate configuration should be loaded from file")
	}

	// Defaults fill in what the file omits
	if cfg.API.Port != 8096 {
		t.Errorf("Expected default API port 8096, got %d", cfg.API.Port)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err == nil {
		t.Error("Explicitly named missing config file should return error")
	}
}
