package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigmos-lang/sigmos/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sigmos.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "memory" || cfg.Logging.Level != "info" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Plugins.CallTimeout != 30*time.Second {
		t.Errorf("call timeout = %v", cfg.Plugins.CallTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
logging:
  level: debug
  format: json
database:
  driver: sqlite
  dsn: /tmp/sigmos.db
plugins:
  call_timeout: 5s
  rest:
    - alias: api
      base_url: https://api.example.com
      auth_token: tok
  mcp:
    - alias: mcp
      endpoint: ws://localhost:9000
      model: sonnet
      temperature: 0.5
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "/tmp/sigmos.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Plugins.CallTimeout != 5*time.Second {
		t.Errorf("call timeout = %v", cfg.Plugins.CallTimeout)
	}
	if len(cfg.Plugins.REST) != 1 || cfg.Plugins.REST[0].Alias != "api" {
		t.Errorf("rest = %+v", cfg.Plugins.REST)
	}
	if len(cfg.Plugins.MCP) != 1 || cfg.Plugins.MCP[0].Model != "sonnet" {
		t.Errorf("mcp = %+v", cfg.Plugins.MCP)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []string{
		"database:\n  driver: sqlite\n", // missing dsn
		"database:\n  driver: oracle\n",
		"logging:\n  format: xml\n",
		"plugins:\n  rest:\n    - alias: a\n", // missing base_url
		"plugins:\n  rest:\n    - alias: a\n      base_url: http://x\n    - alias: a\n      base_url: http://y\n",
	}
	for _, content := range cases {
		t.Run(content, func(t *testing.T) {
			if _, err := config.Load(writeFile(t, content)); err == nil {
				t.Errorf("expected error for:\n%s", content)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "warn")
	t.Setenv(config.EnvDatabaseDSN, "/tmp/env.db")
	t.Setenv(config.EnvServerPort, "9999")

	cfg, err := config.Load(writeFile(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should win over file: %s", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "/tmp/env.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeFile(t, "logging:\n  level: info\n")
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	defer h.Stop()

	var notified *config.Config
	h.OnChange(func(c *config.Config) { notified = c })

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if h.Get().Logging.Level != "debug" {
		t.Errorf("level = %s", h.Get().Logging.Level)
	}
	if notified == nil || notified.Logging.Level != "debug" {
		t.Errorf("listener not notified: %+v", notified)
	}

	// A broken file keeps the old config.
	if err := os.WriteFile(path, []byte("logging: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err == nil {
		t.Errorf("reload of broken config should fail")
	}
	if h.Get().Logging.Level != "debug" {
		t.Errorf("broken reload should keep old config")
	}
}
