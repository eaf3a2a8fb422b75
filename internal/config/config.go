// Package config holds all Maeple configuration: provider credentials, the
// resilience knobs for the breaker and sync queue, observability thresholds,
// and logging. Configuration lives in <data_dir>/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/0Reliance/maeple/internal/breaker"
	"github.com/0Reliance/maeple/internal/parse"
	"github.com/0Reliance/maeple/internal/syncq"
)

// ValidProviders lists the supported completion backends.
var ValidProviders = []string{"anthropic", "gemini"}

// Config holds all Maeple configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Circuit breaker configuration
	Breaker BreakerConfig `yaml:"breaker"`

	// Background sync queue configuration
	Sync SyncConfig `yaml:"sync"`

	// Parse observability thresholds
	Observability ObservabilityConfig `yaml:"observability"`

	// Local storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ProviderConfig configures the LLM completion backend.
type ProviderConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=anthropic gemini"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// BreakerConfig configures the circuit breaker guarding provider calls.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold" validate:"min=1"`
	CoolDown         string `yaml:"cool_down"`
	MaxCoolDown      string `yaml:"max_cool_down"`
}

// SyncConfig configures the background sync queue.
type SyncConfig struct {
	MaxEntries    int    `yaml:"max_entries" validate:"min=1,max=10000"`
	MaxAgeDays    int    `yaml:"max_age_days" validate:"min=1"`
	EntryTimeout  string `yaml:"entry_timeout"`
	DrainInterval string `yaml:"drain_interval"`
}

// ObservabilityConfig configures parse failure-rate alerting.
type ObservabilityConfig struct {
	WindowSize          int     `yaml:"window_size" validate:"min=1"`
	WarnFailureRate     float64 `yaml:"warn_failure_rate" validate:"gte=0,lte=1"`
	CriticalFailureRate float64 `yaml:"critical_failure_rate" validate:"gte=0,lte=1"`
	ConsecutiveFailures int     `yaml:"consecutive_failures" validate:"min=1"`
}

// StorageConfig configures local durable storage.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging. Keys must stay in
// sync with the logging package, which reads this section directly.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

var validate = validator.New()

// DefaultDataDir returns ~/.maeple, the default location for config.yaml
// and the database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maeple"
	}
	return filepath.Join(home, ".maeple")
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "maeple",
		Version: "0.1.0",
		Provider: ProviderConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Timeout:  "120s",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			CoolDown:         "30s",
			MaxCoolDown:      "5m",
		},
		Sync: SyncConfig{
			MaxEntries:    100,
			MaxAgeDays:    7,
			EntryTimeout:  "60s",
			DrainInterval: "30s",
		},
		Observability: ObservabilityConfig{
			WindowSize:          50,
			WarnFailureRate:     0.10,
			CriticalFailureRate: 0.25,
			ConsecutiveFailures: 5,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(DefaultDataDir(), "maeple.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for missing
// fields and environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("MAEPLE_PROVIDER"); p != "" {
		c.Provider.Provider = p
	}
	switch c.Provider.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Provider.APIKey = key
		}
	default:
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.Provider.APIKey = key
		}
	}
	if path := os.Getenv("MAEPLE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
}

// Validate checks structural constraints plus cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Observability.WarnFailureRate > c.Observability.CriticalFailureRate {
		return fmt.Errorf("invalid configuration: warn_failure_rate (%.2f) above critical_failure_rate (%.2f)",
			c.Observability.WarnFailureRate, c.Observability.CriticalFailureRate)
	}
	return nil
}

// GetProviderTimeout returns the provider timeout as a duration.
func (c *Config) GetProviderTimeout() time.Duration {
	return parseDuration(c.Provider.Timeout, 120*time.Second)
}

// BreakerSettings converts to the breaker package's config.
func (c *Config) BreakerSettings() breaker.Config {
	cfg := breaker.DefaultConfig()
	cfg.FailureThreshold = c.Breaker.FailureThreshold
	cfg.CoolDown = parseDuration(c.Breaker.CoolDown, cfg.CoolDown)
	cfg.MaxCoolDown = parseDuration(c.Breaker.MaxCoolDown, cfg.MaxCoolDown)
	return cfg
}

// SyncSettings converts to the syncq package's config.
func (c *Config) SyncSettings() syncq.Config {
	cfg := syncq.DefaultConfig()
	cfg.MaxEntries = c.Sync.MaxEntries
	cfg.MaxAge = time.Duration(c.Sync.MaxAgeDays) * 24 * time.Hour
	cfg.EntryTimeout = parseDuration(c.Sync.EntryTimeout, cfg.EntryTimeout)
	return cfg
}

// DrainInterval returns how often the sync worker runs.
func (c *Config) DrainInterval() time.Duration {
	return parseDuration(c.Sync.DrainInterval, 30*time.Second)
}

// Thresholds converts to the parse package's alert thresholds.
func (c *Config) Thresholds() parse.Thresholds {
	return parse.Thresholds{
		WindowSize:          c.Observability.WindowSize,
		WarnFailureRate:     c.Observability.WarnFailureRate,
		CriticalFailureRate: c.Observability.CriticalFailureRate,
		ConsecutiveFailures: c.Observability.ConsecutiveFailures,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
