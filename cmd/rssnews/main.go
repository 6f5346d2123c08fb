// Package main is the entry point for the rssnews binary.
package main

import (
	"os"

	"github.com/langgraphsystem/rssnews/cmd/rssnews/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
