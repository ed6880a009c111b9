// Package main provides the entry point for the codegraph CLI.
package main

import (
	"os"

	"github.com/cecon-labs/codegraph/cmd/codegraph/cmd"
)

func main() {
	os.Exit(cmd.ExecuteWithExitCode())
}
