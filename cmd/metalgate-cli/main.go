// Package main provides the entry point for metalgate-cli.
//
// metalgate-cli signs in to a metalgate server, manages API keys and shows
// usage statistics and live metal quotes.
package main

import (
	"os"

	"github.com/yndnr/metalgate/internal/cli/command"
)

func main() {
	os.Exit(command.Run(command.App(), os.Args, os.Stderr))
}
