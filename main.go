package main

import (
	"fmt"
	"os"

	"github.com/contextfleet/cli/internal/cli"
	"github.com/contextfleet/cli/internal/config"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Execute with config
	if err := cli.Execute(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
