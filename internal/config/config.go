// Package config handles environment variable loading for the trainer CLI.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Root directory under which each job gets its own artifact directory
	WorkDir string

	// Interpreter executable used for script and launcher rewrites
	Python string

	// SIGTERM-to-SIGKILL window when deleting a job
	GracePeriod time.Duration

	// Listen address for the Prometheus metrics endpoint; empty disables it
	MetricsAddr string

	// OTLP collector endpoint for traces; empty disables tracing export
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	workDir := os.Getenv("TRAINER_WORK_DIR")

	python := os.Getenv("TRAINER_PYTHON")
	if python == "" {
		python = "python"
	}

	grace := 2 * time.Second
	if graceStr := os.Getenv("TRAINER_GRACE_PERIOD"); graceStr != "" {
		g, err := time.ParseDuration(graceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TRAINER_GRACE_PERIOD: %w", err)
		}
		grace = g
	}

	return &Config{
		WorkDir:      workDir,
		Python:       python,
		GracePeriod:  grace,
		MetricsAddr:  os.Getenv("TRAINER_METRICS_ADDR"),
		OTELEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
