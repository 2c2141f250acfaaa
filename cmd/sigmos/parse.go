package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigmos-lang/sigmos/core/parser"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a specification and report diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := parseFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s v%s: ok\n", s.Name, s.Version)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse and structurally validate without executing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := parseFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s v%s: valid (%d inputs, %d computed, %d constraints)\n",
			s.Name, s.Version, len(s.Inputs), len(s.Computed), len(s.Constraints))
		return nil
	},
}

func parseFile(path string) (*spec.Spec, error) {
	raw, err := readSpecFile(path)
	if err != nil {
		return nil, err
	}
	s, ds := parser.Parse(string(raw))
	if ds != nil {
		return nil, exitWith(exitParse, formatDiagnostics(path, ds))
	}
	return s, nil
}

func formatDiagnostics(path string, ds diag.Diagnostics) error {
	return fmt.Errorf("%s:\n%s", path, ds.Error())
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
}
