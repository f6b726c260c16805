package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadFromFile reads and validates the workspace configuration.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for i, source := range c.Sources {
		if source.SourceDir == "" {
			return fmt.Errorf("source %d has no source_dir", i)
		}
		if source.Enable && source.Schedule == "" {
			return fmt.Errorf("source %s is enabled but has no cron schedule", source.SourceDir)
		}
	}
	if c.Policy.MaxCompressionRatio < 0 ||
		c.Policy.NestedScoreThreshold < 0 ||
		c.Policy.MaxDepth < 0 ||
		c.Policy.Workers < 0 {
		return errors.New("policy values must not be negative")
	}
	return nil
}
