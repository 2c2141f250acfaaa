package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, stable for scripting.
const (
	exitOK         = 0
	exitUnexpected = 1
	exitParse      = 2
	exitExecution  = 3
	exitConfig     = 4
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sigmos",
	Short: "Parse, validate, run, and transpile SIGMOS specifications",
	Long: `SIGMOS is a declarative DSL for AI-native, reactive, composable systems.

Working with specs:
  sigmos parse spec.sigmos       # syntax + structural validation
  sigmos run spec.sigmos --input name=Ada
  sigmos transpile spec.sigmos --format yaml
  sigmos describe spec.sigmos

Serving:
  sigmos serve                   # HTTP API with /v1/parse, /v1/run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitUnexpected
	}
	return exitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "sigmos.yaml", "config file path")
}

func readSpecFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exitWith(exitConfig, fmt.Errorf("read spec: %w", err))
	}
	return raw, nil
}
