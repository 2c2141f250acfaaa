package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigmos-lang/sigmos/app"
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Print a human-readable summary of a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := parseFile(args[0])
		if err != nil {
			return err
		}
		fmt.Print(app.Describe(s))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
