package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/opqueue"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string `yaml:"log_level" default:"info"`
	OutputFormat string `yaml:"output_format" default:"text"` // text, json

	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`

	// Operation queue pacing. A dispatched operation is abandoned once
	// polls*PollInterval exceeds OperationTimeout.
	PollInterval     time.Duration `yaml:"poll_interval" default:"50ms"`
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"500ms"`
	MatchCompletions bool          `yaml:"match_completions" default:"false"`

	EventBuffer int    `yaml:"event_buffer" default:"256"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.OperationTimeout < c.PollInterval {
		return fmt.Errorf("operation_timeout (%s) must not be shorter than poll_interval (%s)", c.OperationTimeout, c.PollInterval)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must not be negative, got %d", c.EventBuffer)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output_format %q", c.OutputFormat)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// QueueOptions returns the operation queue pacing.
func (c *Config) QueueOptions() opqueue.Options {
	return opqueue.Options{
		PollInterval:     c.PollInterval,
		OperationTimeout: c.OperationTimeout,
		MatchCompletions: c.MatchCompletions,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
