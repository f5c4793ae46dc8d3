// Package config loads the service configuration from a YAML file, layering
// it over defaults that run the engine standalone with in-memory storage.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diazhh/petroedge-sub001/internal/observability"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	ShutdownTimeoutMs int    `yaml:"shutdownTimeoutMs"`
}

// ShutdownTimeout returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// EngineConfig tunes the dispatcher.
type EngineConfig struct {
	CacheTTLSeconds  int `yaml:"cacheTtlSeconds"`
	DefaultTimeoutMs int `yaml:"defaultTimeoutMs"`
	EventBufferSize  int `yaml:"eventBufferSize"`
}

// CacheTTL returns the chain resolution cache TTL.
func (c EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DefaultTimeout returns the fallback chain execution timeout.
func (c EngineConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// DatabaseConfig selects the chain store backend.
type DatabaseConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// SeedConfig provisions chains at startup. Chain management is the platform
// backend's job; the engine only consumes definitions.
type SeedConfig struct {
	// Tenants lists tenant IDs that receive the root telemetry chain when
	// they do not have one yet.
	Tenants []string `yaml:"tenants"`
	// ChainsDir holds JSON/YAML chain definition files loaded into the
	// store at startup.
	ChainsDir string `yaml:"chainsDir"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Log      observability.LogConfig `yaml:"log"`
	Engine   EngineConfig            `yaml:"engine"`
	Database DatabaseConfig          `yaml:"database"`
	Seed     SeedConfig              `yaml:"seed"`
}

// Default returns the standalone configuration: in-memory store, JSON logs
// at info, engine defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ShutdownTimeoutMs: 10_000,
		},
		Log: observability.LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			CacheTTLSeconds:  600,
			DefaultTimeoutMs: 30_000,
			EventBufferSize:  256,
		},
		Database: DatabaseConfig{
			Driver: "memory",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "parse config file", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "server.addr must not be empty")
	}
	if c.Engine.CacheTTLSeconds < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "engine.cacheTtlSeconds must not be negative")
	}
	if c.Engine.DefaultTimeoutMs <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "engine.defaultTimeoutMs must be positive")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED, "database.url is required for the postgres driver")
		}
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	return nil
}
