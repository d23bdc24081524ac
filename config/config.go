// Package config loads repository-level settings for the mining and
// verification pipeline.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds operational tuning. Every field has a default; none of
// these values is part of the correctness contract.
type Config struct {
	// BuildFilePatterns identifies build-definition files for the
	// extractor. Empty = extract.DefaultBuildFilePatterns.
	BuildFilePatterns []string `yaml:"build_file_patterns"`

	Mining struct {
		Limit       int `yaml:"limit"`         // change requests per run
		MaxAttempts int `yaml:"max_attempts"`  // history fetch retry budget
		RetryBaseMS int `yaml:"retry_base_ms"` // backoff base in milliseconds
	} `yaml:"mining"`

	Verify struct {
		GradleBin      string `yaml:"gradle_bin"`
		TimeoutMinutes int    `yaml:"timeout_minutes"` // per build-tool run
		MaxParallel    int    `yaml:"max_parallel"`
	} `yaml:"verify"`
}

// Load reads a YAML config file, applying defaults. A missing file yields
// the default config.
func Load(path string) (*Config, error) {
	var c Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}

	if c.Mining.Limit <= 0 {
		c.Mining.Limit = 100
	}
	if c.Mining.MaxAttempts <= 0 {
		c.Mining.MaxAttempts = 5
	}
	if c.Mining.RetryBaseMS <= 0 {
		c.Mining.RetryBaseMS = 1000
	}
	if c.Verify.TimeoutMinutes <= 0 {
		c.Verify.TimeoutMinutes = 10
	}
	if c.Verify.MaxParallel <= 0 {
		c.Verify.MaxParallel = 2
	}
	if c.Verify.GradleBin == "" {
		c.Verify.GradleBin = "gradle"
	}
	return &c, nil
}

// RetryBase returns the backoff base as a duration.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Mining.RetryBaseMS) * time.Millisecond
}

// VerifyTimeout returns the per-run timeout as a duration.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutMinutes) * time.Minute
}
