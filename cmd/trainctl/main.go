// Package main is the entry point for the trainctl CLI.
// trainctl drives the local process-based distributed training job runner.
package main

import (
	"os"

	"localtrainer/cmd/trainctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
