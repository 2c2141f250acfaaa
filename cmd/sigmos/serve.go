package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apihttp "github.com/sigmos-lang/sigmos/adapters/http"
	"github.com/sigmos-lang/sigmos/bootstrap"
	"github.com/sigmos-lang/sigmos/config"
)

var serveHotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Start an HTTP server exposing the engine:

  POST /v1/parse      parse a spec, return its serialized AST
  POST /v1/validate   parse + structural validation
  POST /v1/run        execute a spec with inputs
  GET  /healthz       liveness
  GET  /metrics       Prometheus metrics (when enabled)

The configuration file is watched for changes when --hot-reload is set;
SIGHUP also triggers a reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, err := config.NewHolder(cfgFile, bootstrapLogger())
		if err != nil {
			return exitWith(exitConfig, err)
		}
		defer holder.Stop()

		a, err := bootstrap.New(holder.Get())
		if err != nil {
			return exitWith(exitConfig, err)
		}
		defer a.Close()

		holder.OnChange(func(c *config.Config) {
			if a.Metrics != nil {
				a.Metrics.ConfigReloads.Inc()
			}
			a.Logger.Info().Msg("configuration reloaded; plugin and database changes need a restart")
		})
		if serveHotReload {
			if err := holder.WatchFile(); err != nil {
				return exitWith(exitConfig, err)
			}
		}
		holder.WatchSignals()

		cfg := holder.Get()
		srv := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      apihttp.NewHandler(a.Logger, a.Engine, a.Prom),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			a.Logger.Info().Str("addr", srv.Addr).Msg("http server listening")
			errCh <- srv.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return exitWith(exitUnexpected, err)
		case sig := <-stop:
			a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return exitWith(exitUnexpected, err)
		}
		return nil
	},
}

// bootstrapLogger covers the window before bootstrap builds the configured
// logger.
func bootstrapLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveHotReload, "hot-reload", true, "watch the config file and reload on change")
}
