package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load("")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8484, cfg.Server.Port)
		assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify cache defaults
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 256, cfg.Cache.Capacity)

		// Verify engine defaults
		assert.Equal(t, 20, cfg.Engine.TargetCount)
		assert.Equal(t, "standard", cfg.Engine.Backfill)
		assert.Equal(t, "normal", cfg.Engine.StopSensitivity)
		assert.Equal(t, 5, cfg.Engine.MaxIterations)
		assert.Equal(t, 2*time.Second, cfg.Engine.Cooldown)
		assert.False(t, cfg.Engine.GuaranteeExactTarget)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)

		// Verify metrics and health defaults
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9094, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Health.Window)
		assert.Equal(t, 32, cfg.Health.MaxSamples)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("TRACKLENS_SERVER_PORT", "3000")
		t.Setenv("TRACKLENS_LOGGING_LEVEL", "warn")
		t.Setenv("TRACKLENS_ENGINE_STOP_SENSITIVITY", "strict")
		t.Setenv("TRACKLENS_ENGINE_COOLDOWN", "500ms")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "strict", cfg.Engine.StopSensitivity)
		assert.Equal(t, 500*time.Millisecond, cfg.Engine.Cooldown)
	})

	// Test loading from an explicit config file
	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
server:
  port: 9191
engine:
  default_provider: local
  target_count: 10
providers:
  local:
    type: ollama
    base_url: http://localhost:11434/v1
    model: llama3.1
    enabled: true
    rate_limit:
      max_requests: 30
      period: 1m
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9191, cfg.Server.Port)
		assert.Equal(t, 10, cfg.Engine.TargetCount)

		local, ok := cfg.Providers["local"]
		require.True(t, ok)
		assert.Equal(t, "ollama", local.Type)
		assert.Equal(t, "llama3.1", local.Model)
		assert.True(t, local.Enabled)
		assert.Equal(t, 30, local.RateLimit.MaxRequests)
		assert.Equal(t, time.Minute, local.RateLimit.Period)
	})

	t.Run("MissingExplicitFileFails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("ProviderKeyFromEnv", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
providers:
  openai:
    type: openai
    model: gpt-4o-mini
    enabled: true
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		t.Setenv("TRACKLENS_PROVIDERS_OPENAI_API_KEY", "sk-test")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8484},
			Providers: map[string]ProviderConfig{
				"openai": {Type: "openai", Model: "gpt-4o-mini", Enabled: true},
			},
			Engine: EngineConfig{DefaultProvider: "openai", TargetCount: 20, MaxIterations: 5},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("BadPort", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 70000
		require.Error(t, cfg.Validate())
	})

	t.Run("EnabledProviderWithoutType", func(t *testing.T) {
		cfg := base()
		cfg.Providers["broken"] = ProviderConfig{Enabled: true, Model: "m"}
		require.Error(t, cfg.Validate())
	})

	t.Run("EnabledProviderWithoutModel", func(t *testing.T) {
		cfg := base()
		cfg.Providers["broken"] = ProviderConfig{Enabled: true, Type: "openai"}
		require.Error(t, cfg.Validate())
	})

	t.Run("UnknownDefaultProvider", func(t *testing.T) {
		cfg := base()
		cfg.Engine.DefaultProvider = "ghost"
		require.Error(t, cfg.Validate())
	})

	t.Run("DisabledDefaultProvider", func(t *testing.T) {
		cfg := base()
		prov := cfg.Providers["openai"]
		prov.Enabled = false
		cfg.Providers["openai"] = prov
		require.Error(t, cfg.Validate())
	})

	t.Run("NegativeTarget", func(t *testing.T) {
		cfg := base()
		cfg.Engine.TargetCount = -1
		require.Error(t, cfg.Validate())
	})
}

func TestResolveProvider(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"openai": {Type: "openai", Model: "gpt-4o-mini", Enabled: true},
			"local":  {Type: "ollama", Model: "llama3.1", Enabled: true, BaseURL: "http://localhost:11434/v1"},
			"off":    {Type: "openai", Model: "gpt-4o", Enabled: false},
		},
		Engine: EngineConfig{DefaultProvider: "openai"},
	}

	t.Run("ExplicitOverride", func(t *testing.T) {
		name, prov, err := cfg.ResolveProvider("local")
		require.NoError(t, err)
		assert.Equal(t, "local", name)
		assert.Equal(t, "ollama", prov.Type)
	})

	t.Run("Default", func(t *testing.T) {
		name, _, err := cfg.ResolveProvider("")
		require.NoError(t, err)
		assert.Equal(t, "openai", name)
	})

	t.Run("UnknownOverride", func(t *testing.T) {
		_, _, err := cfg.ResolveProvider("missing")
		require.Error(t, err)
	})

	t.Run("DisabledOverride", func(t *testing.T) {
		_, _, err := cfg.ResolveProvider("off")
		require.Error(t, err)
	})

	t.Run("SoleEnabledProvider", func(t *testing.T) {
		solo := &Config{Providers: map[string]ProviderConfig{
			"only": {Type: "mock", Model: "m", Enabled: true},
		}}
		name, _, err := solo.ResolveProvider("")
		require.NoError(t, err)
		assert.Equal(t, "only", name)
	})

	t.Run("AmbiguousWithoutDefault", func(t *testing.T) {
		ambiguous := &Config{Providers: map[string]ProviderConfig{
			"a": {Type: "mock", Model: "m", Enabled: true},
			"b": {Type: "mock", Model: "m", Enabled: true},
		}}
		_, _, err := ambiguous.ResolveProvider("")
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}
