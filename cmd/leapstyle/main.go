// Package main provides the leapstyle stylesheet build runner.
package main

import (
	"os"

	"github.com/leapstack-labs/leapstyle/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
