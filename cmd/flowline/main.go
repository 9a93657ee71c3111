// Package main is the entry point for the flowline CLI.
package main

import (
	"os"

	"github.com/jmylchreest/flowline/cmd/flowline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
