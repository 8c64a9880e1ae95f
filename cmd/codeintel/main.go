// Package main provides the entry point for the codeintel CLI.
package main

import (
	"os"

	"github.com/codeintel-go/engine/cmd/codeintel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
