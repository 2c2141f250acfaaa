// Package bootstrap wires all dependencies and hands back a ready engine:
// logger, state store, metrics, plugin registry, and the execution engine.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sigmos-lang/sigmos/adapters/clock"
	"github.com/sigmos-lang/sigmos/adapters/idgen"
	"github.com/sigmos-lang/sigmos/adapters/memory"
	"github.com/sigmos-lang/sigmos/adapters/metrics"
	"github.com/sigmos-lang/sigmos/adapters/plugins/mcp"
	"github.com/sigmos-lang/sigmos/adapters/plugins/rest"
	"github.com/sigmos-lang/sigmos/adapters/sqlite"
	"github.com/sigmos-lang/sigmos/app"
	"github.com/sigmos-lang/sigmos/config"
	"github.com/sigmos-lang/sigmos/core/registry"
	"github.com/sigmos-lang/sigmos/ports"
)

// App represents the wired application.
type App struct {
	Logger   zerolog.Logger
	Config   *config.Config
	DB       *sqlite.DB
	State    ports.StateStore
	Metrics  *metrics.Collector
	Prom     *prometheus.Registry
	Registry *registry.Registry
	Engine   *app.Engine
}

// New creates and wires the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	a := &App{Logger: logger, Config: cfg}

	if err := a.initState(); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		a.Metrics, a.Prom = metrics.New()
	}
	if err := a.initRegistry(); err != nil {
		return nil, err
	}

	opts := []app.EngineOption{
		app.WithDispatcher(a.Registry),
		app.WithStateStore(a.State),
		app.WithClock(clock.Real{}),
		app.WithIDGenerator(idgen.UUID{}),
	}
	if a.Metrics != nil {
		opts = append(opts, app.WithMetrics(a.Metrics))
	}
	a.Engine = app.NewEngine(logger, opts...)

	logger.Info().
		Str("database", cfg.Database.Driver).
		Strs("extensions", a.Registry.Aliases()).
		Bool("metrics", a.Metrics != nil).
		Msg("sigmos initialized")
	return a, nil
}

func (a *App) initState() error {
	switch a.Config.Database.Driver {
	case "", "memory":
		a.State = memory.NewStateStore()
	case "sqlite":
		db, err := sqlite.Open(a.Config.Database.DSN)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate state database: %w", err)
		}
		a.DB = db
		a.State = sqlite.NewStateStore(db)
	default:
		return fmt.Errorf("unknown database driver %q", a.Config.Database.Driver)
	}
	return nil
}

func (a *App) initRegistry() error {
	a.Registry = registry.New(registry.WithCallTimeout(a.Config.Plugins.CallTimeout))

	for _, pc := range a.Config.Plugins.REST {
		p, err := rest.New(rest.Config{
			BaseURL:        pc.BaseURL,
			DefaultHeaders: pc.DefaultHeaders,
			Timeout:        pc.Timeout,
			AuthToken:      pc.AuthToken,
			UserAgent:      pc.UserAgent,
		})
		if err != nil {
			return fmt.Errorf("rest plugin %q: %w", pc.Alias, err)
		}
		if err := a.Registry.Register(pc.Alias, p); err != nil {
			return err
		}
	}

	for _, pc := range a.Config.Plugins.MCP {
		p, err := mcp.New(mcp.Config{
			Endpoint:    pc.Endpoint,
			Model:       pc.Model,
			APIKey:      pc.APIKey,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
			Timeout:     pc.Timeout,
		})
		if err != nil {
			return fmt.Errorf("mcp plugin %q: %w", pc.Alias, err)
		}
		if err := a.Registry.Register(pc.Alias, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" || cfg.Format == "" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger().Level(level)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
}
