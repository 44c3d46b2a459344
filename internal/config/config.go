// Package config loads and persists the engine configuration from
// ~/.aiengine/config.yaml, with AIENGINE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/itori-ai/aiengine/internal/port"
)

// Config holds all configuration for the routing engine.
type Config struct {
	Assist    AssistConfig    `mapstructure:"assist" yaml:"assist"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`

	// DisabledPorts lists port IDs that must refuse outright.
	DisabledPorts []string `mapstructure:"disabled_ports" yaml:"disabled_ports,omitempty"`
}

// AssistConfig controls the process-wide assist master switch.
type AssistConfig struct {
	// Enabled allows model-backed providers to run. When false only
	// deterministic fallbacks serve requests.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ProvidersConfig configures each capability backend.
type ProvidersConfig struct {
	OnDeviceFoundation ProviderConfig `mapstructure:"on_device_foundation" yaml:"on_device_foundation"`
	LocalEmbedded      ProviderConfig `mapstructure:"local_embedded" yaml:"local_embedded"`
	BringYourOwn       ProviderConfig `mapstructure:"bring_your_own" yaml:"bring_your_own"`
}

// ProviderConfig configures a single backend.
type ProviderConfig struct {
	// Enabled registers the provider with the engine at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the API base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey authenticates against a bring-your-own endpoint.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the model identifier to request.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// ModelPath is the on-disk model file (local embedded only).
	ModelPath string `mapstructure:"model_path" yaml:"model_path,omitempty"`
	// TimeoutSec bounds one backend call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec,omitempty"`
}

// RateLimitConfig bounds request rates and the circuit breaker.
type RateLimitConfig struct {
	GlobalPerMinute int `mapstructure:"global_per_minute" yaml:"global_per_minute"`
	PortPerMinute   int `mapstructure:"port_per_minute" yaml:"port_per_minute"`
	Burst           int `mapstructure:"burst" yaml:"burst"`
	// MaxConsecutiveFailures opens the per-port breaker once reached.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// AuditConfig controls the local routing audit log.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DataDir holds the audit database. Defaults to the config directory.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
}

// LoggingConfig controls process logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
	// Console switches to human-readable output instead of JSON lines.
	Console bool `mapstructure:"console" yaml:"console"`
}

// Default returns the configuration the engine ships with: local providers
// enabled, remote disabled until the user supplies a key, assist on.
func Default() *Config {
	return &Config{
		Assist: AssistConfig{Enabled: true},
		Providers: ProvidersConfig{
			OnDeviceFoundation: ProviderConfig{
				Enabled:    true,
				Endpoint:   "http://127.0.0.1:11434",
				Model:      "foundation-small",
				TimeoutSec: 30,
			},
			LocalEmbedded: ProviderConfig{
				Enabled:    true,
				Model:      "embedded-3b-q4",
				ModelPath:  filepath.Join(defaultDataDir(), "models", "embedded-3b-q4.gguf"),
				TimeoutSec: 45,
			},
			BringYourOwn: ProviderConfig{
				Enabled:    false,
				Endpoint:   "https://api.openai.com/v1",
				Model:      "gpt-4o-mini",
				TimeoutSec: 60,
			},
		},
		RateLimit: RateLimitConfig{
			GlobalPerMinute:        30,
			PortPerMinute:          10,
			Burst:                  5,
			MaxConsecutiveFailures: 3,
		},
		Audit:   AuditConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// Load reads configuration from the default location (~/.aiengine/config.yaml),
// creating it with defaults when missing.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join(defaultDataDir(), "config.yaml"))
}

// LoadFromPath reads configuration from a specific file and merges
// environment overrides (AIENGINE_ASSIST_ENABLED and friends).
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Default().SaveToPath(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AIENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Providers.LocalEmbedded.ModelPath = expandPath(cfg.Providers.LocalEmbedded.ModelPath)
	cfg.Audit.DataDir = expandPath(cfg.Audit.DataDir)
	if cfg.Audit.DataDir == "" {
		cfg.Audit.DataDir = filepath.Dir(path)
	}
	return &cfg, nil
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for common mistakes.
func (c *Config) Validate() error {
	for _, raw := range c.DisabledPorts {
		if !port.ID(raw).Valid() {
			return fmt.Errorf("disabled_ports: unknown port %q", raw)
		}
	}
	if c.Providers.BringYourOwn.Enabled && c.Providers.BringYourOwn.APIKey == "" {
		return fmt.Errorf("providers.bring_your_own: enabled without api_key")
	}
	if c.RateLimit.GlobalPerMinute < 0 || c.RateLimit.PortPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: limits must not be negative")
	}
	validLevels := map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// DisabledPortIDs converts the configured list to typed identifiers.
func (c *Config) DisabledPortIDs() []port.ID {
	out := make([]port.ID, 0, len(c.DisabledPorts))
	for _, raw := range c.DisabledPorts {
		out = append(out, port.ID(raw))
	}
	return out
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".aiengine")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
