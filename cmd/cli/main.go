// Package main is the entry point for the costrules CLI.
package main

import (
	"os"

	"costrules/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
