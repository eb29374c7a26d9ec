package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, and validates configuration.
//
// Steps performed:
//  1. Read the YAML file (a missing file is not an error)
//  2. Expand environment variables
//  3. Unmarshal into the config tree
//  4. Merge defaults under user-supplied values
//  5. Validate
//
// An empty path skips straight to the defaults.
func Initialize(path string) (*Config, error) {
	log := slog.With("config_path", path)

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info("No configuration file found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		default:
			data = ExpandEnv(data)
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration: %w", err)
			}
		}
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("failed to merge configuration defaults: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"strategy", cfg.Pipeline.ResolutionStrategy,
		"worker_pool_size", cfg.Pipeline.WorkerPoolSize,
		"storage_driver", cfg.Storage.Driver,
		"vector_enabled", cfg.Vector.Enabled)
	return cfg, nil
}
