package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigmos-lang/sigmos/core/exporter"
)

var (
	transpileFormat string
	transpileOut    string
)

var transpileCmd = &cobra.Command{
	Use:   "transpile <file>",
	Short: "Serialize a specification to JSON, YAML, or TOML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := exporter.ParseFormat(transpileFormat)
		if err != nil {
			return exitWith(exitConfig, err)
		}
		s, err := parseFile(args[0])
		if err != nil {
			return err
		}
		out, err := exporter.Export(s, format)
		if err != nil {
			return exitWith(exitUnexpected, err)
		}
		if transpileOut == "" {
			fmt.Print(string(out))
			return nil
		}
		if err := os.WriteFile(transpileOut, out, 0o644); err != nil {
			return exitWith(exitUnexpected, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transpileCmd)
	transpileCmd.Flags().StringVar(&transpileFormat, "format", "json", "output format: json, yaml, or toml")
	transpileCmd.Flags().StringVarP(&transpileOut, "output", "o", "", "output file (default stdout)")
}
