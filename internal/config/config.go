package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration, merged from
// defaults, an optional YAML file, and TRACKLENS_* environment variables.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`

	// Providers maps a provider name to its backend wiring. Names are
	// referenced by engine.default_provider and the --provider flag.
	Providers map[string]ProviderConfig `mapstructure:"providers"`

	// ModelsFile optionally overrides the built-in model registry;
	// LibraryFile points at the default library profile YAML.
	ModelsFile  string `mapstructure:"models_file"`
	LibraryFile string `mapstructure:"library_file"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig configures the in-memory recommendation cache.
type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Capacity int           `mapstructure:"capacity"`
}

// EngineConfig holds the recommendation loop defaults. Per-request values
// from the CLI or API override these.
type EngineConfig struct {
	DefaultProvider      string        `mapstructure:"default_provider"`
	TargetCount          int           `mapstructure:"target_count"`
	Backfill             string        `mapstructure:"backfill"`
	StopSensitivity      string        `mapstructure:"stop_sensitivity"`
	ZeroStopThreshold    int           `mapstructure:"zero_stop_threshold"`
	LowStopThreshold     int           `mapstructure:"low_stop_threshold"`
	MaxIterations        int           `mapstructure:"max_iterations"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
	GuaranteeExactTarget bool          `mapstructure:"guarantee_exact_target"`
}

// ProviderConfig wires one LLM backend.
type ProviderConfig struct {
	Type      string          `mapstructure:"type"`
	BaseURL   string          `mapstructure:"base_url"`
	APIKey    string          `mapstructure:"api_key"`
	Model     string          `mapstructure:"model"`
	Enabled   bool            `mapstructure:"enabled"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request admission for one provider.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Period      time.Duration `mapstructure:"period"`
}

// HealthConfig tunes the provider health monitor.
type HealthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Window     time.Duration `mapstructure:"window"`
	MaxSamples int           `mapstructure:"max_samples"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI runs)
// - STRUCTURED: Structured sinks, correlation IDs (server mode)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Validate checks cross-field constraints and rejects configurations the
// runtime cannot honor.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.Engine.TargetCount < 0 {
		return fmt.Errorf("engine.target_count must be >= 0, got %d", c.Engine.TargetCount)
	}
	if c.Engine.MaxIterations < 0 {
		return fmt.Errorf("engine.max_iterations must be >= 0, got %d", c.Engine.MaxIterations)
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be >= 0, got %d", c.Cache.Capacity)
	}

	for name, prov := range c.Providers {
		if !prov.Enabled {
			continue
		}
		if strings.TrimSpace(prov.Type) == "" {
			return fmt.Errorf("provider %q: type is required", name)
		}
		if strings.TrimSpace(prov.Model) == "" {
			return fmt.Errorf("provider %q: model is required", name)
		}
	}

	if def := strings.TrimSpace(c.Engine.DefaultProvider); def != "" {
		prov, ok := c.Providers[def]
		if !ok {
			return fmt.Errorf("engine.default_provider %q not configured", def)
		}
		if !prov.Enabled {
			return fmt.Errorf("engine.default_provider %q is disabled", def)
		}
	}

	return nil
}

// ResolveProvider picks the provider for a request: an explicit override
// first, then the configured default, then the sole enabled provider.
func (c *Config) ResolveProvider(override string) (string, ProviderConfig, error) {
	if name := strings.TrimSpace(override); name != "" {
		prov, ok := c.Providers[name]
		if !ok {
			return "", ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
		}
		if !prov.Enabled {
			return "", ProviderConfig{}, fmt.Errorf("provider %q is disabled", name)
		}
		return name, prov, nil
	}

	if name := strings.TrimSpace(c.Engine.DefaultProvider); name != "" {
		prov, ok := c.Providers[name]
		if !ok {
			return "", ProviderConfig{}, fmt.Errorf("default provider %q not configured", name)
		}
		if !prov.Enabled {
			return "", ProviderConfig{}, fmt.Errorf("default provider %q is disabled", name)
		}
		return name, prov, nil
	}

	var onlyName string
	var onlyCfg ProviderConfig
	for name, prov := range c.Providers {
		if !prov.Enabled {
			continue
		}
		if onlyName != "" {
			return "", ProviderConfig{}, fmt.Errorf("multiple providers enabled; set engine.default_provider or pass --provider")
		}
		onlyName = name
		onlyCfg = prov
	}
	if onlyName == "" {
		return "", ProviderConfig{}, fmt.Errorf("no enabled providers configured")
	}
	return onlyName, onlyCfg, nil
}

// EnabledProviders returns the names of all enabled providers, for doctor
// and listing surfaces.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, prov := range c.Providers {
		if prov.Enabled {
			names = append(names, name)
		}
	}
	return names
}
