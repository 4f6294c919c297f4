// Package config provides centralized configuration management for TrackLens.
// Configuration merges three layers: built-in defaults, an optional YAML file
// (explicit path or XDG discovery), and TRACKLENS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "TRACKLENS"
	appDirName = "tracklens"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Load reads configuration from defaults, the config file, and environment.
// An empty path enables XDG discovery; a missing discovered file is not an
// error, a missing explicit file is.
//
// This function is safe to call multiple times (e.g., for config reload).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit := strings.TrimSpace(path); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", explicit, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errorsAs(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyProviderKeyEnvOverrides(cfg)

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8484)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.capacity", 256)

	v.SetDefault("engine.default_provider", "")
	v.SetDefault("engine.target_count", 20)
	v.SetDefault("engine.backfill", "standard")
	v.SetDefault("engine.stop_sensitivity", "normal")
	v.SetDefault("engine.zero_stop_threshold", 0)
	v.SetDefault("engine.low_stop_threshold", 0)
	v.SetDefault("engine.max_iterations", 5)
	v.SetDefault("engine.cooldown", "2s")
	v.SetDefault("engine.guarantee_exact_target", false)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.window", "5m")
	v.SetDefault("health.max_samples", 32)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9094)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("models_file", "")
	v.SetDefault("library_file", "")
}

// applyProviderKeyEnvOverrides fills provider API keys from the environment.
// Keys do not belong in config files; TRACKLENS_PROVIDERS_<NAME>_API_KEY wins
// over anything on disk, and OPENAI_API_KEY covers the common case.
func applyProviderKeyEnvOverrides(cfg *Config) {
	for name, prov := range cfg.Providers {
		envKey := envPrefix + "_PROVIDERS_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
		if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
			prov.APIKey = value
			cfg.Providers[name] = prov
			continue
		}
		if strings.EqualFold(prov.Type, "openai") && strings.TrimSpace(prov.APIKey) == "" {
			if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
				prov.APIKey = value
				cfg.Providers[name] = prov
			}
		}
	}
}

// searchDirs lists config discovery locations, closest first.
func searchDirs() []string {
	dirs := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(configDir, appDirName))
	}
	return dirs
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, appDirName, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	return filepath.Join(DefaultDataDir(), appDirName+".db")
}

// errorsAs wraps errors.As so the call site reads cleanly with viper's
// value-type sentinel.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
