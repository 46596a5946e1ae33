// Package config loads and validates application configuration using
// Viper: a YAML file (searched across the usual locations) overlaid
// with defaults, plus environment variables for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Profile   string          `mapstructure:"profile"`
	DataDir   string          `mapstructure:"data_dir"`
	RestAPI   RestAPIConfig   `mapstructure:"rest_api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Conflict  ConflictConfig  `mapstructure:"conflict"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AutoPort bool   `mapstructure:"auto_port"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	CORS     bool   `mapstructure:"cors"`
}

// AuthConfig holds the API-key set validated by the auth middleware.
// These are secrets and are sourced from environment variables, never
// from the YAML config file.
type AuthConfig struct {
	APIKeys      []string `mapstructure:"-"`
	Required     bool     `mapstructure:"-"`
	APISecretKey string   `mapstructure:"-"`
}

// RateLimitConfig mirrors internal/ratelimit.Config's shape so it can be
// loaded through the same Viper tree.
type RateLimitConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Global  RateLimitBucket  `mapstructure:"global"`
	Tools   []RateLimitTool  `mapstructure:"tools"`
}

// RateLimitBucket configures one token bucket.
type RateLimitBucket struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// RateLimitTool configures a per-endpoint-category override.
type RateLimitTool struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// LLMConfig configures the text-completion service the extraction
// pipeline calls.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// ConflictConfig tunes the conflict detector/resolver.
type ConflictConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	ReplaceConfidenceGap   float64 `mapstructure:"replace_confidence_gap"`
	MaxAutoMergesPerBatch  int     `mapstructure:"max_auto_merges_per_batch"`
	DetectionFanout        int     `mapstructure:"detection_fanout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"` // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
	Output string `mapstructure:"output"` // stderr, stdout, or a file path
}

// DefaultConfig returns configuration with documented default values.
func DefaultConfig() *Config {
	return &Config{
		Profile: "default",
		DataDir: DefaultDataDir(),
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     8420,
			Host:     "localhost",
			CORS:     true,
		},
		Auth: AuthConfig{},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Global: RateLimitBucket{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
			Tools: []RateLimitTool{
				{Name: "store", RequestsPerSecond: 10, BurstSize: 20},
				{Name: "search", RequestsPerSecond: 30, BurstSize: 60},
				{Name: "export", RequestsPerSecond: 2, BurstSize: 5},
				{Name: "list", RequestsPerSecond: 30, BurstSize: 60},
			},
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			ChatModel:      "qwen2.5:3b",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			HealthInterval: 5 * time.Minute,
		},
		Conflict: ConflictConfig{
			Enabled:               true,
			ReplaceConfidenceGap:  0.05,
			MaxAutoMergesPerBatch: 3,
			DetectionFanout:       20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a YAML file with fallback to defaults,
// then overlays secrets from environment variables. Search order:
//  1. ./config.yaml (current directory)
//  2. ~/.harmonia/config.yaml (user config)
//  3. /etc/harmonia/config.yaml (system config)
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".harmonia"))
	v.AddConfigPath("/etc/harmonia")

	setDefaults(v)

	cfg := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			loadEnvSecrets(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	loadEnvSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envAPIKeys, envAPIKeyRequired, and envAPISecretKey are the only
// configuration surfaces read from the environment; everything else
// comes from the YAML config file.
const (
	envAPIKeys         = "HARMONIA_API_KEYS"
	envAPIKeyRequired  = "HARMONIA_API_KEY_REQUIRED"
	envAPISecretKey    = "HARMONIA_API_SECRET_KEY"
)

func loadEnvSecrets(cfg *Config) {
	if raw := os.Getenv(envAPIKeys); raw != "" {
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Auth.APIKeys = keys
	}
	if raw := os.Getenv(envAPIKeyRequired); raw != "" {
		cfg.Auth.Required = raw == "1" || strings.EqualFold(raw, "true")
	}
	cfg.Auth.APISecretKey = os.Getenv(envAPISecretKey)
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("profile", d.Profile)
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.global.requests_per_second", d.RateLimit.Global.RequestsPerSecond)
	v.SetDefault("rate_limit.global.burst_size", d.RateLimit.Global.BurstSize)

	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.chat_model", d.LLM.ChatModel)
	v.SetDefault("llm.request_timeout", d.LLM.RequestTimeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.health_interval", d.LLM.HealthInterval)

	v.SetDefault("conflict.enabled", d.Conflict.Enabled)
	v.SetDefault("conflict.replace_confidence_gap", d.Conflict.ReplaceConfidenceGap)
	v.SetDefault("conflict.max_auto_merges_per_batch", d.Conflict.MaxAutoMergesPerBatch)
	v.SetDefault("conflict.detection_fanout", d.Conflict.DetectionFanout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when the REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}

	if c.Conflict.MaxAutoMergesPerBatch < 0 {
		return fmt.Errorf("conflict.max_auto_merges_per_batch must be >= 0")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// ConfigDir returns the directory config.Load searches for a user
// config file.
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".harmonia")
}

// DefaultDataDir returns the default on-disk layout root, under which
// per-user databases live at <data_dir>/users/<id>/harmonia.db. Prompt
// templates are held in memory; nothing is written under
// <data_dir>/prompt_versions.
func DefaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".harmonia", "data")
}
