package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the media client bridge configuration
type Config struct {
	// Media server configuration
	ServerURL string `mapstructure:"server_url"`

	// Local API server configuration
	API APIConfig `mapstructure:"api"`

	// Storage configuration
	DatabasePath string `mapstructure:"database_path"`

	// Keystore configuration
	Keystore KeystoreConfig `mapstructure:"keystore"`

	// Capability analyzer configuration
	Capability CapabilityConfig `mapstructure:"capability"`

	// Biometric gate configuration
	Gate GateConfig `mapstructure:"gate"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// APIConfig holds local API server configuration
type APIConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // seconds
	IdleTimeout  int      `mapstructure:"idle_timeout"`  // seconds
	APIKeys      []string `mapstructure:"api_keys"`
	UnlockSecret string   `mapstructure:"unlock_secret"`
	UnlockTTL    int      `mapstructure:"unlock_ttl"` // seconds
	RateLimit    int      `mapstructure:"rate_limit"` // requests per minute, 0 disables
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// KeystoreConfig holds encrypted credential store configuration
type KeystoreConfig struct {
	Provider         string `mapstructure:"provider"` // keychain, wincred, file, memory
	KeyDir           string `mapstructure:"key_dir"`  // file provider key directory
	AppSalt          string `mapstructure:"app_salt"`
	RotationInterval int    `mapstructure:"rotation_interval"` // days
}

// RotationIntervalDuration returns the key rotation interval as a duration.
func (k KeystoreConfig) RotationIntervalDuration() time.Duration {
	return time.Duration(k.RotationInterval) * 24 * time.Hour
}

// CapabilityConfig holds playback capability analyzer configuration
type CapabilityConfig struct {
	Prober      string `mapstructure:"prober"` // ffmpeg, static
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FixturePath string `mapstructure:"fixture_path"` // static prober fixture file
}

// GateConfig holds biometric gate configuration
type GateConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Provider      string `mapstructure:"provider"` // fprintd, simulator
	RequireStrong bool   `mapstructure:"require_strong"`
	Timeout       int    `mapstructure:"timeout"` // seconds
}

// TelemetryConfig holds decision telemetry configuration
type TelemetryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	QueueName     string `mapstructure:"queue_name"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval"` // seconds
	MaxRetries    int    `mapstructure:"max_retries"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: "",
		API: APIConfig{
			Host:         "127.0.0.1",
			Port:         8096,
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			APIKeys:      []string{},
			UnlockSecret: "",
			UnlockTTL:    300,
			RateLimit:    120,
			CORSOrigins:  []string{},
		},
		DatabasePath: "./media-bridge.db",
		Keystore: KeystoreConfig{
			Provider:         "file",
			KeyDir:           "",
			AppSalt:          "media-client-bridge",
			RotationInterval: 30,
		},
		Capability: CapabilityConfig{
			Prober:      "ffmpeg",
			FFmpegPath:  "ffmpeg",
			FixturePath: "",
		},
		Gate: GateConfig{
			Enabled:       false,
			Provider:      "fprintd",
			RequireStrong: false,
			Timeout:       30,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			RedisAddr:     "localhost:6379",
			RedisPassword: "",
			RedisDB:       0,
			QueueName:     "media-bridge:decisions",
			BatchSize:     50,
			FlushInterval: 30,
			MaxRetries:    3,
		},
		LogLevel: "info",
		LogFile:  "",
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		// Look for config in current directory and common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/media-client-bridge")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".media-client-bridge"))
		}
	}

	// Environment variable configuration
	v.SetEnvPrefix("MEDIA_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server_url", cfg.ServerURL)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)

	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("api.read_timeout", cfg.API.ReadTimeout)
	v.SetDefault("api.write_timeout", cfg.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", cfg.API.IdleTimeout)
	v.SetDefault("api.api_keys", cfg.API.APIKeys)
	v.SetDefault("api.unlock_secret", cfg.API.UnlockSecret)
	v.SetDefault("api.unlock_ttl", cfg.API.UnlockTTL)
	v.SetDefault("api.rate_limit", cfg.API.RateLimit)
	v.SetDefault("api.cors_origins", cfg.API.CORSOrigins)

	v.SetDefault("keystore.provider", cfg.Keystore.Provider)
	v.SetDefault("keystore.key_dir", cfg.Keystore.KeyDir)
	v.SetDefault("keystore.app_salt", cfg.Keystore.AppSalt)
	v.SetDefault("keystore.rotation_interval", cfg.Keystore.RotationInterval)

	v.SetDefault("capability.prober", cfg.Capability.Prober)
	v.SetDefault("capability.ffmpeg_path", cfg.Capability.FFmpegPath)
	v.SetDefault("capability.fixture_path", cfg.Capability.FixturePath)

	v.SetDefault("gate.enabled", cfg.Gate.Enabled)
	v.SetDefault("gate.provider", cfg.Gate.Provider)
	v.SetDefault("gate.require_strong", cfg.Gate.RequireStrong)
	v.SetDefault("gate.timeout", cfg.Gate.Timeout)

	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.redis_addr", cfg.Telemetry.RedisAddr)
	v.SetDefault("telemetry.redis_password", cfg.Telemetry.RedisPassword)
	v.SetDefault("telemetry.redis_db", cfg.Telemetry.RedisDB)
	v.SetDefault("telemetry.queue_name", cfg.Telemetry.QueueName)
	v.SetDefault("telemetry.batch_size", cfg.Telemetry.BatchSize)
	v.SetDefault("telemetry.flush_interval", cfg.Telemetry.FlushInterval)
	v.SetDefault("telemetry.max_retries", cfg.Telemetry.MaxRetries)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}

	switch c.Keystore.Provider {
	case "keychain", "wincred", "file", "memory":
	default:
		return fmt.Errorf("keystore.provider must be one of: keychain, wincred, file, memory")
	}

	if c.Keystore.AppSalt == "" {
		return fmt.Errorf("keystore.app_salt is required")
	}

	if c.Keystore.RotationInterval <= 0 {
		return fmt.Errorf("keystore.rotation_interval must be positive")
	}

	switch c.Capability.Prober {
	case "ffmpeg", "static":
	default:
		return fmt.Errorf("capability.prober must be one of: ffmpeg, static")
	}

	if c.Capability.Prober == "static" && c.Capability.FixturePath == "" {
		return fmt.Errorf("capability.fixture_path is required for the static prober")
	}

	if c.Gate.Enabled {
		switch c.Gate.Provider {
		case "fprintd", "simulator":
		default:
			return fmt.Errorf("gate.provider must be one of: fprintd, simulator")
		}
		if c.Gate.Timeout <= 0 {
			return fmt.Errorf("gate.timeout must be positive")
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.RedisAddr == "" {
			return fmt.Errorf("telemetry.redis_addr is required when telemetry is enabled")
		}
		if c.Telemetry.QueueName == "" {
			return fmt.Errorf("telemetry.queue_name is required when telemetry is enabled")
		}
		if c.Telemetry.BatchSize <= 0 {
			return fmt.Errorf("telemetry.batch_size must be positive")
		}
		if c.Telemetry.MaxRetries < 0 {
			return fmt.Errorf("telemetry.max_retries must not be negative")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}
