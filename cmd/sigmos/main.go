// Package main is the entry point for the sigmos CLI.
package main

import "os"

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(Execute())
}
