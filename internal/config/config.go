package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Backend   BackendConfig   `yaml:"backend" toml:"backend" json:"backend"`
	Poll      PollConfig      `yaml:"poll" toml:"poll" json:"poll"`
	UI        UIConfig        `yaml:"ui" toml:"ui" json:"ui"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
	Simulator SimulatorConfig `yaml:"simulator" toml:"simulator" json:"simulator"`
}

// BackendConfig points the client at the speed-test backend
type BackendConfig struct {
	BaseURL          string `yaml:"base_url" toml:"base_url" json:"base_url"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms" toml:"request_timeout_ms" json:"request_timeout_ms"`
}

// PollConfig controls the status poll loop
type PollConfig struct {
	IntervalMs int `yaml:"interval_ms" toml:"interval_ms" json:"interval_ms"`
	MaxPolls   int `yaml:"max_polls" toml:"max_polls" json:"max_polls"`
}

// UIConfig holds presentation settings
type UIConfig struct {
	ResetDelayMs    int    `yaml:"reset_delay_ms" toml:"reset_delay_ms" json:"reset_delay_ms"`
	FeedbackComment string `yaml:"feedback_comment" toml:"feedback_comment" json:"feedback_comment"`
	FeedbackWorkers int    `yaml:"feedback_workers" toml:"feedback_workers" json:"feedback_workers"`
}

// LogConfig configures logrus and file rotation.
// An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level" json:"level"`
	File       string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress" json:"compress"`
}

// SimulatorConfig drives the built-in simulated backend
type SimulatorConfig struct {
	Listen      string  `yaml:"listen" toml:"listen" json:"listen"`
	StepDelayMs int     `yaml:"step_delay_ms" toml:"step_delay_ms" json:"step_delay_ms"`
	Download    float64 `yaml:"download" toml:"download" json:"download"`
	Upload      float64 `yaml:"upload" toml:"upload" json:"upload"`
	Ping        float64 `yaml:"ping" toml:"ping" json:"ping"`
	Jitter      float64 `yaml:"jitter" toml:"jitter" json:"jitter"`
	Sponsor     string  `yaml:"sponsor" toml:"sponsor" json:"sponsor"`
	ServerName  string  `yaml:"server_name" toml:"server_name" json:"server_name"`
	Country     string  `yaml:"country" toml:"country" json:"country"`
	Host        string  `yaml:"host" toml:"host" json:"host"`
	// FailPhase makes the scripted run fail when it reaches this phase.
	FailPhase string `yaml:"fail_phase" toml:"fail_phase" json:"fail_phase"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:          "http://localhost:5000",
			RequestTimeoutMs: 10000,
		},
		Poll: PollConfig{
			IntervalMs: 2000,
			MaxPolls:   120,
		},
		UI: UIConfig{
			ResetDelayMs:    2000,
			FeedbackComment: "User rating from speed test",
			FeedbackWorkers: 4,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Simulator: SimulatorConfig{
			Listen:      ":5000",
			StepDelayMs: 1500,
			Download:    85.5,
			Upload:      22.3,
			Ping:        28,
			Jitter:      28,
			Sponsor:     "Speedtest Pro Lab",
			ServerName:  "Amsterdam, NL",
			Country:     "Netherlands",
			Host:        "speedtest.example.net:8080",
		},
	}
}

// PollInterval returns the poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request backend timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutMs) * time.Millisecond
}

// ResetDelay returns the delay before the UI resets after a test ends
func (c *Config) ResetDelay() time.Duration {
	return time.Duration(c.UI.ResetDelayMs) * time.Millisecond
}

// StepDelay returns the simulator's delay between phases
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Simulator.StepDelayMs) * time.Millisecond
}

// Validate checks configuration correctness.
// It does not mutate the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url has no host: %q", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeoutMs <= 0 {
		return fmt.Errorf("backend.request_timeout_ms must be > 0")
	}
	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be > 0")
	}
	if c.Poll.MaxPolls <= 0 {
		return fmt.Errorf("poll.max_polls must be > 0")
	}
	if c.UI.ResetDelayMs < 0 {
		return fmt.Errorf("ui.reset_delay_ms must be >= 0")
	}
	if c.UI.FeedbackWorkers <= 0 {
		return fmt.Errorf("ui.feedback_workers must be > 0")
	}
	if c.Simulator.StepDelayMs < 0 {
		return fmt.Errorf("simulator.step_delay_ms must be >= 0")
	}
	if c.Simulator.Download < 0 || c.Simulator.Upload < 0 || c.Simulator.Ping < 0 || c.Simulator.Jitter < 0 {
		return fmt.Errorf("simulator speeds and latencies must be >= 0")
	}
	switch strings.ToLower(c.Simulator.FailPhase) {
	case "", "initializing", "finding_server", "server_found", "testing_download", "testing_upload":
	default:
		return fmt.Errorf("simulator.fail_phase %q is not a test phase", c.Simulator.FailPhase)
	}
	return nil
}
