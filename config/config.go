// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server for serve mode.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures execution-state persistence.
// Use "memory" for per-process state or "sqlite" for durable state.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// PluginsConfig configures extension bindings available to specs.
type PluginsConfig struct {
	// CallTimeout is the per-call deadline applied to every plugin
	// invocation.
	CallTimeout time.Duration      `yaml:"call_timeout"`
	REST        []RESTPluginConfig `yaml:"rest"`
	MCP         []MCPPluginConfig  `yaml:"mcp"`
}

// RESTPluginConfig binds an extension alias to an HTTP capability.
type RESTPluginConfig struct {
	Alias          string            `yaml:"alias"`
	BaseURL        string            `yaml:"base_url"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Timeout        time.Duration     `yaml:"timeout"`
	AuthToken      string            `yaml:"auth_token"`
	UserAgent      string            `yaml:"user_agent"`
}

// MCPPluginConfig binds an extension alias to an MCP model endpoint.
type MCPPluginConfig struct {
	Alias       string        `yaml:"alias"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Driver: "memory"},
		Plugins:  PluginsConfig{CallTimeout: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

// Environment variable names for bootstrap overrides. These are the only
// config values read from the environment; they take precedence over the
// file.
const (
	EnvLogLevel    = "SIGMOS_LOG_LEVEL"
	EnvLogFormat   = "SIGMOS_LOG_FORMAT"
	EnvDatabaseDSN = "SIGMOS_DATABASE_DSN"
	EnvServerPort  = "SIGMOS_SERVER_PORT"
)

// Load reads and validates a YAML configuration file. A missing path returns
// defaults; a present but invalid file is an error. Environment overrides
// apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "memory":
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	seen := make(map[string]bool)
	for _, p := range c.Plugins.REST {
		if p.Alias == "" || p.BaseURL == "" {
			return fmt.Errorf("rest plugin needs alias and base_url")
		}
		if seen[p.Alias] {
			return fmt.Errorf("plugin alias %q is bound twice", p.Alias)
		}
		seen[p.Alias] = true
	}
	for _, p := range c.Plugins.MCP {
		if p.Alias == "" || p.Endpoint == "" || p.Model == "" {
			return fmt.Errorf("mcp plugin needs alias, endpoint, and model")
		}
		if seen[p.Alias] {
			return fmt.Errorf("plugin alias %q is bound twice", p.Alias)
		}
		seen[p.Alias] = true
	}
	return nil
}
