package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sigmos-lang/sigmos/bootstrap"
	"github.com/sigmos-lang/sigmos/config"
	"github.com/sigmos-lang/sigmos/core/parser"
	"github.com/sigmos-lang/sigmos/domain/value"
)

func TestNew_MemoryDefaults(t *testing.T) {
	a, err := bootstrap.New(config.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.Engine == nil || a.State == nil || a.Registry == nil {
		t.Fatalf("incomplete wiring: %+v", a)
	}
	if a.Metrics == nil {
		t.Errorf("metrics enabled by default")
	}

	s, ds := parser.Parse(`spec "boot" v1.0 { computed: { r: float = 6 * 7 } }`)
	if ds != nil {
		t.Fatal(ds)
	}
	res, err := a.Engine.Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if r, _ := res.Computed.Get("r"); !r.Equal(value.Number(42)) {
		t.Errorf("r = %v", r)
	}
}

func TestNew_SQLiteState(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "state.db")

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.DB == nil {
		t.Errorf("sqlite driver should open a database")
	}
}

func TestNew_RegistersConfiguredPlugins(t *testing.T) {
	cfg := config.Default()
	cfg.Plugins.REST = []config.RESTPluginConfig{{Alias: "api", BaseURL: "http://localhost:1"}}
	cfg.Plugins.MCP = []config.MCPPluginConfig{{Alias: "mcp", Endpoint: "ws://localhost:1", Model: "m"}}

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	aliases := a.Registry.Aliases()
	if len(aliases) != 2 || aliases[0] != "api" || aliases[1] != "mcp" {
		t.Errorf("aliases = %v", aliases)
	}
}
