// Package main provides the entry point for the searchfuse CLI.
package main

import (
	"os"

	"github.com/searchfuse/searchfuse/cmd/searchfuse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
