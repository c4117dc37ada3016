// Package main provides the LeapREST command-line entry point.
package main

import (
	"os"

	"github.com/leapstack-labs/leaprest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
