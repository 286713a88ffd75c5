package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from file, creates a default one if it does not exist
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		return loadFromFile(configPath)
	} else if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	} else {
		return nil, fmt.Errorf("failed to check config file: %w", err)
	}
}

// LoadAndValidate loads the configuration and validates it
func LoadAndValidate(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// loadFromFile decodes a YAML or TOML file on top of the defaults
func loadFromFile(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if isTOML(configPath) {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	mergeWithDefaults(cfg)

	return cfg, nil
}

// mergeWithDefaults fills in zero values with defaults
func mergeWithDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaults.Backend.BaseURL
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.RequestTimeoutMs == 0 {
		cfg.Backend.RequestTimeoutMs = defaults.Backend.RequestTimeoutMs
	}

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = defaults.Poll.IntervalMs
	}
	if cfg.Poll.MaxPolls == 0 {
		cfg.Poll.MaxPolls = defaults.Poll.MaxPolls
	}

	if cfg.UI.FeedbackComment == "" {
		cfg.UI.FeedbackComment = defaults.UI.FeedbackComment
	}
	if cfg.UI.FeedbackWorkers == 0 {
		cfg.UI.FeedbackWorkers = defaults.UI.FeedbackWorkers
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}

	if cfg.Simulator.Listen == "" {
		cfg.Simulator.Listen = defaults.Simulator.Listen
	}
	if cfg.Simulator.Sponsor == "" {
		cfg.Simulator.Sponsor = defaults.Simulator.Sponsor
	}
	if cfg.Simulator.ServerName == "" {
		cfg.Simulator.ServerName = defaults.Simulator.ServerName
	}
	if cfg.Simulator.Country == "" {
		cfg.Simulator.Country = defaults.Simulator.Country
	}
	if cfg.Simulator.Host == "" {
		cfg.Simulator.Host = defaults.Simulator.Host
	}
}

// Save writes the configuration as YAML, or TOML for a .toml path
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if isTOML(configPath) {
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
