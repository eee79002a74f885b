package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models agora.yml.
type Config struct {
	Conditions struct {
		VotePeriodHours       float64 `yaml:"vote_period_hours"`
		ConsensusMinimumHours float64 `yaml:"consensus_minimum_hours"`
	} `yaml:"conditions"`
	Resolution struct {
		LogCap int `yaml:"log_cap"`
	} `yaml:"resolution"`
}

// Default returns the built-in defaults: week-long votes, two-day consensus
// minimum, bounded resolution logs.
func Default() *Config {
	var cfg Config
	cfg.Conditions.VotePeriodHours = 168
	cfg.Conditions.ConsensusMinimumHours = 48
	cfg.Resolution.LogCap = 40
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Conditions.VotePeriodHours <= 0 {
		return fmt.Errorf("config.conditions.vote_period_hours must be positive")
	}
	if c.Conditions.ConsensusMinimumHours < 0 {
		return fmt.Errorf("config.conditions.consensus_minimum_hours must not be negative")
	}
	if c.Resolution.LogCap <= 0 {
		return fmt.Errorf("config.resolution.log_cap must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agora.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
