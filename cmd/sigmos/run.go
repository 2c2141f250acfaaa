package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/sigmos-lang/sigmos/bootstrap"
	"github.com/sigmos-lang/sigmos/config"
	"github.com/sigmos-lang/sigmos/domain/value"
)

var (
	runInputs  []string
	runHistory int
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a specification",
	Long: `Execute a specification against supplied inputs.

Input values are parsed as: true/false -> bool, null -> null, decimal
literals -> number, values starting with { or [ -> JSON, anything
else -> string.

Examples:
  sigmos run agent.sigmos --input name=Ada --input age=36
  sigmos run agent.sigmos --input 'tags=["a","b"]'
  sigmos run agent.sigmos --history 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := parseFile(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return exitWith(exitConfig, err)
		}
		a, err := bootstrap.New(cfg)
		if err != nil {
			return exitWith(exitConfig, err)
		}
		defer a.Close()

		if runHistory > 0 {
			return printHistory(cmd, a, s.Name)
		}

		provided, err := parseInputFlags(runInputs)
		if err != nil {
			return exitWith(exitConfig, err)
		}

		res, err := a.Engine.Execute(cmd.Context(), s, provided)
		if err != nil {
			return exitWith(exitExecution, err)
		}

		fmt.Printf("execution %s\n", res.ExecutionID)
		for _, k := range res.Inputs.Keys() {
			v, _ := res.Inputs.Get(k)
			fmt.Printf("  input    %-16s = %s\n", k, v.Format())
		}
		for _, k := range res.Computed.Keys() {
			v, _ := res.Computed.Get(k)
			fmt.Printf("  computed %-16s = %s\n", k, v.Format())
		}
		for _, ev := range res.Events {
			fmt.Printf("  event    %s fired\n", ev.Kind)
		}
		return nil
	},
}

func printHistory(cmd *cobra.Command, a *bootstrap.App, specName string) error {
	recs, err := a.State.History(cmd.Context(), specName, runHistory)
	if err != nil {
		return exitWith(exitUnexpected, err)
	}
	if len(recs) == 0 {
		fmt.Println("no recorded executions")
		return nil
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %-10s %s", rec.StartedAt.Format("2006-01-02 15:04:05"), rec.Status, rec.ID)
		if rec.ErrorKind != "" {
			line += "  (" + rec.ErrorKind + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// parseInputFlags decodes repeated --input K=V flags.
func parseInputFlags(flags []string) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(flags))
	for _, kv := range flags {
		key, raw, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("input %q must have the form key=value", kv)
		}
		v, err := parseInputValue(raw)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func parseInputValue(raw string) (value.Value, error) {
	switch {
	case raw == "true":
		return value.Bool(true), nil
	case raw == "false":
		return value.Bool(false), nil
	case raw == "null":
		return value.Null(), nil
	}
	// ParseFloat also accepts Inf, NaN and hex floats; only decimal literals
	// (digits, sign, point, exponent) become numbers.
	isDecimal := strings.IndexFunc(raw, func(r rune) bool {
		return unicode.IsLetter(r) && r != 'e' && r != 'E'
	}) < 0
	if n, err := strconv.ParseFloat(raw, 64); err == nil && isDecimal {
		return value.Number(n), nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return value.Null(), fmt.Errorf("invalid JSON: %w", err)
		}
		return value.FromGo(decoded)
	}
	return value.String(raw), nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "input value as key=value (repeatable)")
	runCmd.Flags().IntVar(&runHistory, "history", 0, "print the last N executions instead of running")
}
